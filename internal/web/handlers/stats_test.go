package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/database/mock"
)

type dashboardFixture struct {
	handler       *DashboardHandler
	users         *mock.MockUserStore
	notifications *mock.MockNotificationStore
	dashboard     *mock.MockDashboardReader
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	now := time.Now()

	users := mock.NewMockUserStore()
	users.AddUser(database.User{Name: "Maria Silva", Approved: true})
	users.AddUser(database.User{Name: "José Pereira", Approved: true})
	users.AddUser(database.User{Name: "Ana Costa"})

	descriptors := mock.NewMockDescriptorStore()
	descriptors.AddDescriptor(1, make([]float32, 128))
	descriptors.AddDescriptor(2, make([]float32, 128))

	notifications := mock.NewMockNotificationStore()
	notifications.CreateNotification(context.Background(), &database.Notification{ManagerID: 1, Message: "a"})
	notifications.CreateNotification(context.Background(), &database.Notification{ManagerID: 1, Message: "b"})

	var days []database.DailyCount
	for i := 9; i >= 0; i-- {
		days = append(days, database.DailyCount{Day: now.AddDate(0, 0, -i), Allowed: 1, Denied: i % 2})
	}
	dashboard := &mock.MockDashboardReader{
		Days:    days,
		Reasons: []database.ReasonCount{{Reason: "face not recognized in system", Count: 1}},
		Hours:   []database.HourlyCount{{Hour: 8, Allowed: 3}, {Hour: 9, Allowed: 1, Denied: 4}},
		Present: []database.PresentUser{{UserID: 1, Name: "Maria Silva", TypeAccess: database.AccessTypeFacial}},
		Top: []database.UserActivity{
			{UserID: 1, Name: "Maria Silva", AccessCount: 12},
			{UserID: 2, Name: "José Pereira", AccessCount: 3},
		},
		Notifications: []database.NotificationTypeCount{{Type: database.NotificationAccessDenied, Count: 2, Unread: 2}},
	}

	handler := NewDashboardHandler(DashboardSources{
		Users:         users,
		Descriptors:   descriptors,
		Registers:     seedRegisters(t, now),
		Notifications: notifications,
		Dashboard:     dashboard,
	})
	handler.now = func() time.Time { return now }

	return &dashboardFixture{handler: handler, users: users, notifications: notifications, dashboard: dashboard}
}

func (f *dashboardFixture) get(t *testing.T) database.DashboardSummary {
	t.Helper()
	req := requestAsManager(httptest.NewRequest("GET", "/api/v1/dashboard", nil), 1)
	recorder := httptest.NewRecorder()
	f.handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var summary database.DashboardSummary
	parseJSONResponse(t, recorder, &summary)
	return summary
}

func TestDashboardHandler_Get(t *testing.T) {
	f := newDashboardFixture(t)

	summary := f.get(t)

	if summary.TotalUsers != 3 || summary.ApprovedUsers != 2 || summary.PendingUsers != 1 {
		t.Errorf("unexpected user counts %+v", summary)
	}
	if summary.EnrolledFaces != 2 {
		t.Errorf("enrolled faces = %d, want 2", summary.EnrolledFaces)
	}
	if summary.UnreadNotifications != 2 {
		t.Errorf("unread = %d, want 2", summary.UnreadNotifications)
	}
	if len(summary.TopDenialReasons) != 1 {
		t.Errorf("unexpected denial reasons %+v", summary.TopDenialReasons)
	}
}

func TestDashboardHandler_Trends(t *testing.T) {
	f := newDashboardFixture(t)

	summary := f.get(t)

	if len(f.dashboard.DaysRequested) != 1 || f.dashboard.DaysRequested[0] != trendDays {
		t.Errorf("expected one daily query for %d days, got %v", trendDays, f.dashboard.DaysRequested)
	}
	if len(summary.SuccessTrend) != 10 {
		t.Fatalf("expected 10 trend days, got %d", len(summary.SuccessTrend))
	}
	if rate := summary.SuccessTrend[0].SuccessRate; rate != 50 {
		t.Errorf("expected 50%% on the oldest day, got %v", rate)
	}
	if len(summary.LastWeek) != dashboardDays {
		t.Errorf("expected last week to hold %d days, got %d", dashboardDays, len(summary.LastWeek))
	}
	if !summary.LastWeek[dashboardDays-1].Day.Equal(summary.SuccessTrend[9].Day) {
		t.Error("expected last week to end on the newest trend day")
	}

	if summary.Today.Total != 8 || summary.Today.Allowed != 4 || summary.Today.SuccessRate != 50 {
		t.Errorf("expected today 4 of 8 allowed, got %+v", summary.Today)
	}
	if len(summary.Hourly) != 2 {
		t.Errorf("expected 2 hourly buckets, got %d", len(summary.Hourly))
	}
	if len(summary.PresentUsers) != 1 || summary.PresentUsers[0].Name != "Maria Silva" {
		t.Errorf("unexpected present users %+v", summary.PresentUsers)
	}
	if len(summary.TopUsers) != 2 || summary.TopUsers[0].AccessCount != 12 {
		t.Errorf("unexpected top users %+v", summary.TopUsers)
	}
	if len(summary.NotificationTypes) != 1 || summary.NotificationTypes[0].Unread != 2 {
		t.Errorf("unexpected notification types %+v", summary.NotificationTypes)
	}
}

func TestDashboardHandler_EmptySeriesEncodeAsArrays(t *testing.T) {
	f := newDashboardFixture(t)
	*f.dashboard = mock.MockDashboardReader{}

	req := requestAsManager(httptest.NewRequest("GET", "/api/v1/dashboard", nil), 1)
	recorder := httptest.NewRecorder()
	f.handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	body := recorder.Body.String()
	for _, field := range []string{"last_week", "success_trend", "hourly", "present_users", "top_users", "notification_types"} {
		if !strings.Contains(body, `"`+field+`":[]`) {
			t.Errorf("expected %s to be an empty array in %s", field, body)
		}
	}
}

func TestDashboardHandler_AggregateFailure(t *testing.T) {
	f := newDashboardFixture(t)
	f.dashboard.Error = errors.New("connection refused")

	req := requestAsManager(httptest.NewRequest("GET", "/api/v1/dashboard", nil), 1)
	recorder := httptest.NewRecorder()
	f.handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestDashboardHandler_CachesCountsButNotUnread(t *testing.T) {
	f := newDashboardFixture(t)
	f.get(t)

	f.users.AddUser(database.User{Name: "New Person"})
	f.notifications.CreateNotification(context.Background(), &database.Notification{ManagerID: 1, Message: "c"})

	summary := f.get(t)
	if summary.TotalUsers != 3 {
		t.Errorf("expected cached total users 3, got %d", summary.TotalUsers)
	}
	if summary.UnreadNotifications != 3 {
		t.Errorf("expected fresh unread count 3, got %d", summary.UnreadNotifications)
	}

	f.handler.InvalidateCache()
	summary = f.get(t)
	if summary.TotalUsers != 4 {
		t.Errorf("expected total users 4 after invalidation, got %d", summary.TotalUsers)
	}
}

func TestDashboardHandler_RequiresSession(t *testing.T) {
	f := newDashboardFixture(t)
	recorder := httptest.NewRecorder()

	f.handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/dashboard", nil))

	assertStatusCode(t, recorder, http.StatusUnauthorized)
}
