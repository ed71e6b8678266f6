package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facepass/internal/descriptor"
	"github.com/kozaktomas/facepass/internal/identity"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusCreated, map[string]any{"count": 42})

	assertStatusCode(t, recorder, http.StatusCreated)
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["count"] != float64(42) {
		t.Errorf("expected count 42, got %v", result["count"])
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "bad input")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "bad input")
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"user not found", fmt.Errorf("get: %w", identity.ErrUserNotFound), http.StatusNotFound},
		{"not enrolled", identity.ErrNotEnrolled, http.StatusConflict},
		{"no face", identity.ErrNoFace, http.StatusUnprocessableEntity},
		{"invalid image", fmt.Errorf("extract: %w", descriptor.ErrInvalidImage), http.StatusBadRequest},
		{"email taken", identity.ErrEmailTaken, http.StatusConflict},
		{"invalid input", fmt.Errorf("%w: name is required", identity.ErrInvalidInput), http.StatusBadRequest},
		{"credentials", identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/users/1", nil)
			recorder := httptest.NewRecorder()

			respondServiceError(recorder, req, tt.err)

			assertStatusCode(t, recorder, tt.status)
		})
	}
}

func TestRespondServiceError_TraceID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/dashboard", nil)
	recorder := httptest.NewRecorder()

	respondServiceError(recorder, req, errors.New("database is down"))

	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["trace_id"] == "" {
		t.Error("expected trace_id to be set")
	}
	if result["error"] != "internal error" {
		t.Errorf("expected generic error message, got '%s'", result["error"])
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"id": tt.value})
			got, err := parseIDParam(req, "id")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseIDParam(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseIDParam(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("a\nb\rc"); got != "abc" {
		t.Errorf("sanitizeForLog() = %q, want %q", got, "abc")
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantState  string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]Pinger{"database": fakePinger{}, "face_service": fakePinger{}}, http.StatusOK, "ok"},
		{"database down", map[string]Pinger{"database": fakePinger{err: errors.New("refused")}, "face_service": fakePinger{}}, http.StatusServiceUnavailable, "degraded"},
		{"nil check skipped", map[string]Pinger{"database": nil}, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.checks)
			req := httptest.NewRequest("GET", "/api/v1/health", nil)
			recorder := httptest.NewRecorder()

			handler.Check(recorder, req)

			assertStatusCode(t, recorder, tt.wantStatus)
			var result struct {
				Status     string            `json:"status"`
				Components map[string]string `json:"components"`
			}
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if result.Status != tt.wantState {
				t.Errorf("status = %q, want %q", result.Status, tt.wantState)
			}
		})
	}
}
