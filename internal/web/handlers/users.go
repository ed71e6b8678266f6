package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/facematch"
	"github.com/kozaktomas/facepass/internal/identity"
)

// IdentityService is the part of identity.Service the user endpoints use.
type IdentityService interface {
	RegisterUser(ctx context.Context, reg identity.Registration) (*database.User, error)
	GetUser(ctx context.Context, id int64) (*database.User, error)
	UpdateUser(ctx context.Context, id int64, upd identity.UserUpdate) (*database.User, error)
	RegistrationStatus(ctx context.Context, email string) (*identity.RegistrationStatus, error)
	ListUsers(ctx context.Context, status string) ([]database.User, error)
	Approve(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
	EnrollFace(ctx context.Context, userID int64, photo []byte) (*descriptor.Result, error)
	VerifyFace(ctx context.Context, userID int64, photo []byte) (facematch.MatchResult, bool, error)
}

// UsersHandler handles registration, approval and enrollment endpoints
type UsersHandler struct {
	service IdentityService
	changed func()
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(service IdentityService) *UsersHandler {
	return &UsersHandler{service: service, changed: func() {}}
}

// OnChange registers fn to run after a request changes a user or their face.
func (h *UsersHandler) OnChange(fn func()) {
	h.changed = fn
}

// Register handles self-registration. The multipart form carries name,
// email, cpf, position and a photo file.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	photo, err := readUpload(w, r, "photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), identity.Registration{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		CPF:      r.FormValue("cpf"),
		Position: r.FormValue("position"),
		Photo:    photo,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.changed()
	respondJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "registration received, awaiting manager approval",
	})
}

// List returns users, optionally filtered by ?status=pending|approved
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []database.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// Get returns a single user
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Update replaces the personal data and approval state of a user. The
// enrolled face is kept.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var upd identity.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, upd)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.changed()
	respondJSON(w, http.StatusOK, user)
}

// Status lets a person check their registration by ?email= without logging in
func (h *UsersHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.RegistrationStatus(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Approve grants access to a pending user
func (h *UsersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Approve(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.changed()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user_id": id})
}

// Delete rejects a pending user or removes an approved one
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// EnrollResponse describes a new enrollment.
type EnrollResponse struct {
	UserID     int64   `json:"user_id"`
	FacesFound int     `json:"faces_found"`
	Model      string  `json:"model,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// EnrollFace replaces the enrolled face of a user with the uploaded "photo"
func (h *UsersHandler) EnrollFace(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	photo, err := readUpload(w, r, "photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}

	res, err := h.service.EnrollFace(r.Context(), id, photo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.changed()
	respondJSON(w, http.StatusOK, EnrollResponse{
		UserID:     id,
		FacesFound: res.FacesFound,
		Model:      res.Model,
		Score:      res.DetScore,
	})
}

// VerifyResponse is the outcome of a 1:1 comparison.
type VerifyResponse struct {
	UserID     int64   `json:"user_id"`
	Match      bool    `json:"match"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Verify compares the uploaded "image" against the enrolled face of a user
func (h *UsersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	image, err := readUpload(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	result, ok, err := h.service.VerifyFace(r.Context(), id, image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, VerifyResponse{
		UserID:     id,
		Match:      ok,
		Distance:   result.Distance,
		Confidence: result.Confidence,
	})
}
