package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/identity"
)

const (
	defaultNearestK = 5
	maxNearestK     = 50
)

// NearestFinder answers approximate top-k identity queries.
type NearestFinder interface {
	Nearest(ctx context.Context, descriptor []float32, k int) ([]database.Neighbor, error)
}

// FaceExtractor produces the descriptor of a photo.
type FaceExtractor interface {
	ExtractReader(ctx context.Context, r io.Reader) (*descriptor.Result, error)
}

// FacesHandler handles nearest-identity lookups
type FacesHandler struct {
	extractor FaceExtractor
	index     NearestFinder
}

// NewFacesHandler creates a new faces handler. index may be nil when the
// nearest-identity index is disabled.
func NewFacesHandler(extractor FaceExtractor, index NearestFinder) *FacesHandler {
	return &FacesHandler{extractor: extractor, index: index}
}

// NearestResponse lists the closest enrolled users to the uploaded face.
type NearestResponse struct {
	FacesFound int                 `json:"faces_found"`
	Neighbors  []database.Neighbor `json:"neighbors"`
}

// Nearest extracts the face in the uploaded "image" and returns the k closest
// enrolled users (?k=, default 5). It is a diagnostic aid; access decisions
// never use it.
func (h *FacesHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		respondError(w, http.StatusServiceUnavailable, "nearest-identity index is not enabled")
		return
	}

	k := defaultNearestK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid k")
			return
		}
		k = min(parsed, maxNearestK)
	}

	image, err := openUpload(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer image.Close()

	res, err := h.extractor.ExtractReader(r.Context(), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !res.Found() {
		respondServiceError(w, r, identity.ErrNoFace)
		return
	}

	neighbors, err := h.index.Nearest(r.Context(), res.Descriptor, k)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if neighbors == nil {
		neighbors = []database.Neighbor{}
	}
	respondJSON(w, http.StatusOK, NearestResponse{FacesFound: res.FacesFound, Neighbors: neighbors})
}
