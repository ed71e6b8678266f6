package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/database/mock"
)

func seedRegisters(t *testing.T, now time.Time) *mock.MockRegisterStore {
	t.Helper()
	store := mock.NewMockRegisterStore()
	seed := []database.AccessRegister{
		{UserName: "José Pereira", AccessAllowed: true, Location: "Entrada Principal", CreatedAt: now.Add(-48 * time.Hour)},
		{UserName: "Maria Silva", AccessAllowed: true, Location: "Entrada Principal", CreatedAt: now.Add(-time.Hour)},
		{AccessAllowed: false, ReasonDenied: "face not recognized in system", Location: "Garagem", CreatedAt: now.Add(-30 * time.Minute)},
		{UserName: "Maria Silva", AccessAllowed: false, ReasonDenied: "pending manager approval", Location: "Garagem", CreatedAt: now.Add(-10 * time.Minute)},
	}
	for i := range seed {
		if _, err := store.SaveRegister(context.Background(), &seed[i]); err != nil {
			t.Fatalf("failed to seed register: %v", err)
		}
	}
	return store
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"", database.StatusAll, false},
		{"Todos", database.StatusAll, false},
		{"Permitido", database.StatusAllowed, false},
		{"negado", database.StatusDenied, false},
		{"allowed", database.StatusAllowed, false},
		{"denied", database.StatusDenied, false},
		{"maybe", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseStatus(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStatus(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTime_EndDateIncludesWholeDay(t *testing.T) {
	end, err := parseTime("2024-03-10", true)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	want := time.Date(2024, 3, 11, 0, 0, 0, 0, time.Local)
	if !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}

func TestRegistersHandler_List(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		query  string
		status int
		want   int
	}{
		{"all", "", http.StatusOK, 4},
		{"denied in portuguese", "?status=Negado", http.StatusOK, 2},
		{"allowed", "?status=allowed", http.StatusOK, 2},
		{"name ignores accents and case", "?name=jose", http.StatusOK, 1},
		{"location", "?location=Garagem", http.StatusOK, 2},
		{"name and status", "?name=maria&status=denied", http.StatusOK, 1},
		{"limit", "?limit=3", http.StatusOK, 3},
		{"offset", "?offset=3", http.StatusOK, 1},
		{"start", "?start=" + now.Add(-2*time.Hour).Format(time.RFC3339), http.StatusOK, 3},
		{"bad status", "?status=maybe", http.StatusBadRequest, 0},
		{"bad date", "?start=yesterday", http.StatusBadRequest, 0},
		{"bad limit", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRegistersHandler(seedRegisters(t, now))

			req := httptest.NewRequest("GET", "/api/v1/registers"+tt.query, nil)
			recorder := httptest.NewRecorder()

			handler.List(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				Registers []database.AccessRegister `json:"registers"`
			}
			parseJSONResponse(t, recorder, &resp)
			if len(resp.Registers) != tt.want {
				t.Errorf("got %d registers, want %d", len(resp.Registers), tt.want)
			}
		})
	}
}

func TestRegistersHandler_Stats(t *testing.T) {
	now := time.Now()
	handler := NewRegistersHandler(seedRegisters(t, now))
	handler.now = func() time.Time { return now.Add(time.Minute) }

	req := httptest.NewRequest("GET", "/api/v1/registers/stats", nil)
	recorder := httptest.NewRecorder()

	handler.Stats(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp StatsResponse
	parseJSONResponse(t, recorder, &resp)

	if resp.Stats.Total != 4 || resp.Stats.Allowed != 2 || resp.Stats.Denied != 2 {
		t.Errorf("unexpected stats %+v", resp.Stats)
	}
	if resp.Stats.SuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", resp.Stats.SuccessRate)
	}
}

func TestRegistersHandler_Stats_InvalidPeriod(t *testing.T) {
	handler := NewRegistersHandler(mock.NewMockRegisterStore())

	req := httptest.NewRequest("GET", "/api/v1/registers/stats?start=2024-03-10&end=2024-03-01", nil)
	recorder := httptest.NewRecorder()

	handler.Stats(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}
