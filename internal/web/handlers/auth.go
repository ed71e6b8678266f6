package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/identity"
	"github.com/kozaktomas/facepass/internal/web/middleware"
)

// Authenticator verifies manager credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*database.Manager, error)
}

// AuthHandler handles manager authentication endpoints
type AuthHandler struct {
	auth           Authenticator
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth Authenticator, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		auth:           auth,
		sessionManager: sm,
	}
}

// loginRequest represents a login request
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool              `json:"success"`
	SessionID string            `json:"session_id,omitempty"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Manager   *database.Manager `json:"manager,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Login handles manager login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	manager, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			logrus.WithField("email", sanitizeForLog(req.Email)).Warn("failed manager login")
			respondJSON(w, http.StatusUnauthorized, LoginResponse{
				Success: false,
				Error:   "invalid credentials",
			})
			return
		}
		respondServiceError(w, r, err)
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context(), manager.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.sessionManager.SetSessionCookie(w, r, session)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		Manager:   manager,
	})
}

// Logout handles manager logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	ManagerID     int64  `json:"manager_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status checks if the manager is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		ManagerID:     session.ManagerID,
		ExpiresAt:     session.ExpiresAt.Format(time.RFC3339),
	})
}
