package handlers

import (
	"net/http"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/web/middleware"
)

// NotificationsHandler serves the notifications of the signed-in manager
type NotificationsHandler struct {
	store database.NotificationWriter
}

// NewNotificationsHandler creates a new notifications handler
func NewNotificationsHandler(store database.NotificationWriter) *NotificationsHandler {
	return &NotificationsHandler{store: store}
}

// NotificationsResponse is the notification list plus the unread count.
type NotificationsResponse struct {
	Notifications []database.Notification `json:"notifications"`
	Unread        int                     `json:"unread"`
}

// managerID returns the manager of the session RequireAuth placed in the context.
func managerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return session.ManagerID, true
}

// List returns notifications, only unread ones with ?unread=true
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	mid, ok := managerID(w, r)
	if !ok {
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	items, err := h.store.ListNotifications(r.Context(), mid, unreadOnly)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	unread, err := h.store.CountUnread(r.Context(), mid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []database.Notification{}
	}
	respondJSON(w, http.StatusOK, NotificationsResponse{Notifications: items, Unread: unread})
}

// MarkRead marks a notification as read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	mid, ok := managerID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := h.store.MarkRead(r.Context(), mid, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Delete removes a notification
func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	mid, ok := managerID(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := h.store.DeleteNotification(r.Context(), mid, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
