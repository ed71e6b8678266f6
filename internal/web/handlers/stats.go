package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
)

const (
	statsCacheTTL      = 30 * time.Second
	dashboardDays      = 7
	trendDays          = 30
	denialReasonsLimit = 5
	topUsersLimit      = 10
)

// statsCache holds the manager-independent part of the dashboard with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *database.DashboardSummary
	expiresAt time.Time
}

func (c *statsCache) get(now time.Time) (database.DashboardSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || now.After(c.expiresAt) {
		return database.DashboardSummary{}, false
	}
	return *c.data, true
}

func (c *statsCache) set(data database.DashboardSummary, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = &data
	c.expiresAt = now.Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// DashboardSources are the stores the dashboard aggregates.
type DashboardSources struct {
	Users         database.UserReader
	Descriptors   database.DescriptorReader
	Registers     database.RegisterReader
	Notifications database.NotificationReader
	Dashboard     database.DashboardReader
}

// DashboardHandler serves the manager dashboard summary
type DashboardHandler struct {
	src   DashboardSources
	cache statsCache
	now   func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(src DashboardSources) *DashboardHandler {
	return &DashboardHandler{src: src, now: time.Now}
}

// InvalidateCache clears the cached summary so the next request fetches fresh data
func (h *DashboardHandler) InvalidateCache() {
	h.cache.invalidate()
}

func (h *DashboardHandler) collect(ctx context.Context, now time.Time) (database.DashboardSummary, error) {
	var s database.DashboardSummary
	var err error
	today := startOfDay(now)
	windowStart := today.AddDate(0, 0, -(trendDays - 1))

	if s.TotalUsers, s.ApprovedUsers, err = h.src.Users.CountUsers(ctx); err != nil {
		return s, fmt.Errorf("count users: %w", err)
	}
	s.PendingUsers = s.TotalUsers - s.ApprovedUsers
	if s.EnrolledFaces, err = h.src.Descriptors.Count(ctx); err != nil {
		return s, fmt.Errorf("count descriptors: %w", err)
	}
	if s.TodayAccesses, err = h.src.Registers.CountSince(ctx, today); err != nil {
		return s, fmt.Errorf("count today's accesses: %w", err)
	}

	daily, err := h.src.Dashboard.DailyCounts(ctx, trendDays)
	if err != nil {
		return s, fmt.Errorf("daily counts: %w", err)
	}
	s.SuccessTrend = database.SuccessTrend(daily)
	s.LastWeek = daily[max(0, len(daily)-dashboardDays):]

	if s.TopDenialReasons, err = h.src.Dashboard.TopDenialReasons(ctx, windowStart, denialReasonsLimit); err != nil {
		return s, fmt.Errorf("denial reasons: %w", err)
	}
	if s.Hourly, err = h.src.Dashboard.HourlyCounts(ctx, today); err != nil {
		return s, fmt.Errorf("hourly counts: %w", err)
	}
	allowed, denied := 0, 0
	for _, c := range s.Hourly {
		allowed += c.Allowed
		denied += c.Denied
	}
	s.Today = database.NewAccessStats(allowed, denied)

	if s.PresentUsers, err = h.src.Dashboard.PresentUsers(ctx, today); err != nil {
		return s, fmt.Errorf("present users: %w", err)
	}
	if s.TopUsers, err = h.src.Dashboard.TopUsers(ctx, windowStart, topUsersLimit); err != nil {
		return s, fmt.Errorf("top users: %w", err)
	}
	if s.NotificationTypes, err = h.src.Dashboard.NotificationsByType(ctx, windowStart); err != nil {
		return s, fmt.Errorf("notifications by type: %w", err)
	}

	emptyIfNil(&s.LastWeek)
	emptyIfNil(&s.TopDenialReasons)
	emptyIfNil(&s.Hourly)
	emptyIfNil(&s.PresentUsers)
	emptyIfNil(&s.TopUsers)
	emptyIfNil(&s.NotificationTypes)
	return s, nil
}

// emptyIfNil makes nil series encode as [] instead of null.
func emptyIfNil[T any](s *[]T) {
	if *s == nil {
		*s = []T{}
	}
}

// Get returns the dashboard summary of the signed-in manager
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	mid, ok := managerID(w, r)
	if !ok {
		return
	}

	now := h.now()
	summary, cached := h.cache.get(now)
	if !cached {
		var err error
		summary, err = h.collect(r.Context(), now)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		h.cache.set(summary, now)
	}

	unread, err := h.src.Notifications.CountUnread(r.Context(), mid)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	summary.UnreadNotifications = unread

	respondJSON(w, http.StatusOK, summary)
}
