package handlers

import (
	"net/http"

	"github.com/kozaktomas/facepass/internal/config"
	"github.com/kozaktomas/facepass/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Tolerance       float64 `json:"tolerance"`
	DescriptorDim   int     `json:"descriptor_dim"`
	Model           string  `json:"model"`
	DefaultLocation string  `json:"default_location"`
	TypeAccess      string  `json:"type_access"`
	SyncRecording   bool    `json:"sync_recording"`
	StoreCaptures   bool    `json:"store_captures"`
	HNSWEnabled     bool    `json:"hnsw_enabled"`
	HNSWCount       int     `json:"hnsw_count"`
}

// Get returns the non-secret configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Tolerance:       h.config.Recognition.Tolerance,
		DescriptorDim:   h.config.Recognition.DescriptorDim,
		Model:           h.config.FaceService.Model,
		DefaultLocation: h.config.Access.DefaultLocation,
		TypeAccess:      h.config.Access.TypeAccess,
		SyncRecording:   h.config.Access.SyncRecording,
		StoreCaptures:   h.config.Access.StoreCaptures,
	}

	if rebuilder := database.GetHNSWRebuilder(); rebuilder != nil && rebuilder.IsHNSWEnabled() {
		response.HNSWEnabled = true
		response.HNSWCount = rebuilder.HNSWCount()
	}

	respondJSON(w, http.StatusOK, response)
}
