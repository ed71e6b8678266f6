package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facepass/internal/database/mock"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm := NewSessionManager("test-secret", time.Hour, nil)
	t.Cleanup(sm.Stop)
	return sm
}

func TestNewSessionManager(t *testing.T) {
	sm := newTestManager(t)
	if sm.sessions == nil {
		t.Error("sessions map is nil")
	}
	if sm.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", sm.ttl)
	}
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := newTestManager(t)

	session, err := sm.CreateSession(context.Background(), 7)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.ManagerID != 7 {
		t.Errorf("ManagerID = %d, want 7", session.ManagerID)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
}

func TestSessionManager_GetSession(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 7)

	if got := sm.GetSession(context.Background(), session.ID); got == nil || got.ManagerID != 7 {
		t.Fatalf("GetSession() = %v, want manager 7", got)
	}
	if got := sm.GetSession(context.Background(), "nonexistent-id"); got != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 7)
	session.ExpiresAt = time.Now().Add(-time.Minute)

	if got := sm.GetSession(context.Background(), session.ID); got != nil {
		t.Error("expired session should not be returned")
	}
}

func TestSessionManager_PersistsThroughStore(t *testing.T) {
	store := mock.NewMockSessionStore()
	first := NewSessionManager("test-secret", time.Hour, store)
	defer first.Stop()

	session, err := first.CreateSession(context.Background(), 3)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// A fresh manager simulates a restart.
	second := NewSessionManager("test-secret", time.Hour, store)
	defer second.Stop()
	got := second.GetSession(context.Background(), session.ID)
	if got == nil || got.ManagerID != 3 {
		t.Fatalf("GetSession() after restart = %v, want manager 3", got)
	}

	second.DeleteSession(context.Background(), session.ID)
	if s, _ := store.GetSession(context.Background(), session.ID); s != nil {
		t.Error("session should be deleted from the store")
	}
}

func TestSessionManager_SetAndGetSessionCookie(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 1)

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil), session)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Name != sessionCookieName {
		t.Errorf("cookie name = %s, want %s", cookies[0].Name, sessionCookieName)
	}
	if !cookies[0].HttpOnly {
		t.Error("cookie should be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("GetSessionFromRequest() = %v, want %s", got, session.ID)
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 1)

	tests := []struct {
		name  string
		value string
	}{
		{"tampered signature", session.ID + ".forged"},
		{"no signature", session.ID},
		{"unknown session", "abc." + sm.signData("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.value})
			if got := sm.GetSessionFromRequest(req); got != nil {
				t.Errorf("GetSessionFromRequest() = %v, want nil", got)
			}
		})
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	if got := sm.GetSessionFromRequest(req); got == nil {
		t.Error("expected session from bearer token")
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 9)

	var seen *Session
	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"no auth", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + session.ID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (seen == nil || seen.ManagerID != 9) {
				t.Errorf("session in context = %v, want manager 9", seen)
			}
		})
	}
}

func TestRequireDeviceToken(t *testing.T) {
	sm := newTestManager(t)
	session, _ := sm.CreateSession(context.Background(), 1)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		token      string
		header     string
		bearer     string
		wantStatus int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "terminal-secret", "", "", http.StatusUnauthorized},
		{"wrong", "terminal-secret", "guess", "", http.StatusUnauthorized},
		{"valid", "terminal-secret", "terminal-secret", "", http.StatusOK},
		{"manager session", "terminal-secret", "", session.ID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/access/attempts", nil)
			if tt.header != "" {
				req.Header.Set(DeviceTokenHeader, tt.header)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			RequireDeviceToken(tt.token, sm)(ok).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetSessionFromContext(t *testing.T) {
	if GetSessionFromContext(context.Background()) != nil {
		t.Error("expected nil session from empty context")
	}
	s := &Session{ID: "abc", ManagerID: 2}
	if got := GetSessionFromContext(SetSessionInContext(context.Background(), s)); got != s {
		t.Errorf("GetSessionFromContext() = %v, want %v", got, s)
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := newTestManager(t)
	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected one expiring cookie, got %v", cookies)
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	s := &Session{ID: "abc", ManagerID: 4, ExpiresAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(data)
	if !strings.Contains(got, `"session_id":"abc"`) || !strings.Contains(got, `"manager_id":4`) {
		t.Errorf("unexpected JSON %s", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://portaria.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://portaria.example.com", "https://portaria.example.com"},
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}
