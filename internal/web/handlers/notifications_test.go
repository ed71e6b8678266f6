package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/database/mock"
)

func seedNotifications(t *testing.T) *mock.MockNotificationStore {
	t.Helper()
	store := mock.NewMockNotificationStore()
	for _, n := range []database.Notification{
		{ManagerID: 1, Type: database.NotificationAccessDenied, Message: "denied one"},
		{ManagerID: 1, Type: database.NotificationNewUserPending, Message: "pending", Read: true},
		{ManagerID: 2, Type: database.NotificationAccessDenied, Message: "other manager"},
	} {
		if err := store.CreateNotification(context.Background(), &n); err != nil {
			t.Fatalf("failed to seed notification: %v", err)
		}
	}
	return store
}

func TestNotificationsHandler_List(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCount  int
		wantUnread int
	}{
		{"all", "", 2, 1},
		{"unread only", "?unread=true", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewNotificationsHandler(seedNotifications(t))

			req := requestAsManager(httptest.NewRequest("GET", "/api/v1/notifications"+tt.query, nil), 1)
			recorder := httptest.NewRecorder()

			handler.List(recorder, req)

			assertStatusCode(t, recorder, http.StatusOK)
			var resp NotificationsResponse
			parseJSONResponse(t, recorder, &resp)
			if len(resp.Notifications) != tt.wantCount {
				t.Errorf("got %d notifications, want %d", len(resp.Notifications), tt.wantCount)
			}
			if resp.Unread != tt.wantUnread {
				t.Errorf("unread = %d, want %d", resp.Unread, tt.wantUnread)
			}
		})
	}
}

func TestNotificationsHandler_RequiresSession(t *testing.T) {
	handler := NewNotificationsHandler(seedNotifications(t))
	recorder := httptest.NewRecorder()

	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/notifications", nil))

	assertStatusCode(t, recorder, http.StatusUnauthorized)
}

func TestNotificationsHandler_MarkReadAndDelete(t *testing.T) {
	tests := []struct {
		name      string
		call      func(h *NotificationsHandler, w http.ResponseWriter, r *http.Request)
		managerID int64
		id        string
		status    int
	}{
		{"mark own", (*NotificationsHandler).MarkRead, 1, "1", http.StatusOK},
		{"mark other manager's", (*NotificationsHandler).MarkRead, 1, "3", http.StatusNotFound},
		{"mark bad id", (*NotificationsHandler).MarkRead, 1, "x", http.StatusBadRequest},
		{"delete own", (*NotificationsHandler).Delete, 2, "3", http.StatusNoContent},
		{"delete other manager's", (*NotificationsHandler).Delete, 2, "1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedNotifications(t)
			handler := NewNotificationsHandler(store)

			req := httptest.NewRequest("POST", "/api/v1/notifications/"+tt.id, nil)
			req = requestWithChiParams(req, map[string]string{"id": tt.id})
			req = requestAsManager(req, tt.managerID)
			recorder := httptest.NewRecorder()

			tt.call(handler, recorder, req)

			assertStatusCode(t, recorder, tt.status)
		})
	}
}

func TestNotificationsHandler_MarkReadClearsUnread(t *testing.T) {
	store := seedNotifications(t)
	handler := NewNotificationsHandler(store)

	req := requestWithChiParams(httptest.NewRequest("POST", "/api/v1/notifications/1/read", nil), map[string]string{"id": "1"})
	handler.MarkRead(httptest.NewRecorder(), requestAsManager(req, 1))

	unread, _ := store.CountUnread(context.Background(), 1)
	if unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}
}
