package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
)

const (
	defaultRegisterLimit = 100
	maxRegisterLimit     = 1000
	dateLayout           = "2006-01-02"
)

// RegistersHandler serves the access log
type RegistersHandler struct {
	store database.RegisterReader
	now   func() time.Time
}

// NewRegistersHandler creates a new registers handler
func NewRegistersHandler(store database.RegisterReader) *RegistersHandler {
	return &RegistersHandler{store: store, now: time.Now}
}

// parseStatus accepts the English filter values and the labels of the
// original Portuguese front end.
func parseStatus(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all", "todos":
		return database.StatusAll, nil
	case "allowed", "permitido":
		return database.StatusAllowed, nil
	case "denied", "negado":
		return database.StatusDenied, nil
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain end date
// includes the whole day.
func parseTime(raw string, end bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", raw)
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// parsePeriod reads ?start= and ?end= from the query.
func parsePeriod(r *http.Request) (start, end *time.Time, err error) {
	q := r.URL.Query()
	if start, err = parseTime(q.Get("start"), false); err != nil {
		return nil, nil, err
	}
	if end, err = parseTime(q.Get("end"), true); err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && !start.Before(*end) {
		return nil, nil, fmt.Errorf("start must be before end")
	}
	return start, end, nil
}

// parseRegisterFilter builds a filter from name, status, location, start,
// end, limit and offset query parameters.
func parseRegisterFilter(r *http.Request) (database.RegisterFilter, error) {
	q := r.URL.Query()
	filter := database.RegisterFilter{
		UserName: q.Get("name"),
		Location: q.Get("location"),
		Limit:    defaultRegisterLimit,
	}

	var err error
	if filter.Status, err = parseStatus(q.Get("status")); err != nil {
		return filter, err
	}
	if filter.Start, filter.End, err = parsePeriod(r); err != nil {
		return filter, err
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = min(limit, maxRegisterLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset")
		}
		filter.Offset = offset
	}
	return filter, nil
}

// List returns access registers matching the query filters, newest first
func (h *RegistersHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRegisterFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	registers, err := h.store.ListRegisters(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if registers == nil {
		registers = []database.AccessRegister{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"registers": registers,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// StatsResponse aggregates a period plus today's attempt count.
type StatsResponse struct {
	Start string               `json:"start"`
	End   string               `json:"end"`
	Stats database.AccessStats `json:"stats"`
	Today int                  `json:"today"`
}

// Stats returns allowed/denied totals for ?start=&end=, defaulting to the last 30 days
func (h *RegistersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	start, end, err := parsePeriod(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	if end == nil {
		end = &now
	}
	if start == nil {
		s := end.AddDate(0, 0, -30)
		start = &s
	}

	stats, err := h.store.Stats(r.Context(), *start, *end)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	today, err := h.store.CountSince(r.Context(), startOfDay(now))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Start: start.Format(time.RFC3339),
		End:   end.Format(time.RFC3339),
		Stats: stats,
		Today: today,
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
