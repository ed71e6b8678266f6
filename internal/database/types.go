package database

import (
	"time"
)

// Access type recorded for attempts made through the face terminal.
const AccessTypeFacial = "Reconhecimento Facial"

// AccessTypeExit marks registers written by exit terminals. A user whose
// latest allowed access has this type is no longer present.
const AccessTypeExit = "Saída"

// Notification types.
const (
	NotificationAccessDenied   = "access_denied"
	NotificationNewUserPending = "new_user_pending"
)

// StoredDescriptor is the enrolled face descriptor of one user.
type StoredDescriptor struct {
	ID         int64
	UserID     int64
	Descriptor []float32
	Model      string
	Dim        int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// User is a person who may be granted access once approved by a manager.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CPF       string    `json:"cpf"`
	Position  string    `json:"position"`
	Approved  bool      `json:"approved"`
	HasFace   bool      `json:"has_face"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager approves users and receives notifications.
type Manager struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccessRegister is a persisted access attempt.
type AccessRegister struct {
	ID            int64     `json:"id"`
	AttemptID     string    `json:"attempt_id"`
	UserID        *int64    `json:"user_id,omitempty"`
	UserName      string    `json:"user_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	TypeAccess    string    `json:"type_access"`
	AccessAllowed bool      `json:"access_allowed"`
	Confidence    float64   `json:"confidence"`
	ReasonDenied  string    `json:"reason_denied,omitempty"`
	Location      string    `json:"location"`
	CaptureHash   string    `json:"capture_hash,omitempty"`
	CapturedImage []byte    `json:"-"`
}

// Notification is a message for a manager.
type Notification struct {
	ID               int64     `json:"id"`
	ManagerID        int64     `json:"manager_id"`
	AccessRegisterID *int64    `json:"access_register_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Type             string    `json:"type_notification"`
	Message          string    `json:"message"`
	Read             bool      `json:"read"`
}

// Register status filter values.
const (
	StatusAll     = "all"
	StatusAllowed = "allowed"
	StatusDenied  = "denied"
)

// RegisterFilter narrows access register queries. Zero values match everything.
type RegisterFilter struct {
	UserName string
	Status   string
	Location string
	Start    *time.Time
	End      *time.Time
	Limit    int
	Offset   int
}

// AccessStats aggregates access registers over a period.
type AccessStats struct {
	Total       int     `json:"total"`
	Allowed     int     `json:"allowed"`
	Denied      int     `json:"denied"`
	SuccessRate float64 `json:"success_rate"`
}

// NewAccessStats computes the success rate as a percentage rounded to one decimal.
func NewAccessStats(allowed, denied int) AccessStats {
	stats := AccessStats{Total: allowed + denied, Allowed: allowed, Denied: denied}
	if stats.Total > 0 {
		rate := float64(allowed) / float64(stats.Total) * 100
		stats.SuccessRate = float64(int(rate*10+0.5)) / 10
	}
	return stats
}

// DailyCount is the number of allowed and denied attempts on one day.
type DailyCount struct {
	Day     time.Time `json:"day"`
	Allowed int       `json:"allowed"`
	Denied  int       `json:"denied"`
}

// ReasonCount is the number of denials with the same reason.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// HourlyCount is the number of allowed and denied attempts in one hour of a
// day. Hour counts from the start of that day, 0 to 23.
type HourlyCount struct {
	Hour    int `json:"hour"`
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// DailyRate is the share of allowed attempts on one day.
type DailyRate struct {
	Day time.Time `json:"day"`
	AccessStats
}

// SuccessTrend turns daily counts into daily success rates, same order.
func SuccessTrend(days []DailyCount) []DailyRate {
	trend := make([]DailyRate, len(days))
	for i, d := range days {
		trend[i] = DailyRate{Day: d.Day, AccessStats: NewAccessStats(d.Allowed, d.Denied)}
	}
	return trend
}

// PresentUser is an approved user whose latest allowed access today was
// not at an exit terminal.
type PresentUser struct {
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Position   string    `json:"position"`
	TypeAccess string    `json:"type_access"`
	LastAccess time.Time `json:"last_access"`
}

// UserActivity counts the allowed accesses of one user.
type UserActivity struct {
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Position    string    `json:"position"`
	AccessCount int       `json:"access_count"`
	LastAccess  time.Time `json:"last_access"`
}

// NotificationTypeCount is the number of notifications of one type.
type NotificationTypeCount struct {
	Type   string `json:"type"`
	Count  int    `json:"count"`
	Read   int    `json:"read"`
	Unread int    `json:"unread"`
}

// DashboardSummary is the manager dashboard overview.
type DashboardSummary struct {
	TotalUsers          int                     `json:"total_users"`
	ApprovedUsers       int                     `json:"approved_users"`
	PendingUsers        int                     `json:"pending_users"`
	EnrolledFaces       int                     `json:"enrolled_faces"`
	TodayAccesses       int                     `json:"today_accesses"`
	Today               AccessStats             `json:"today"`
	UnreadNotifications int                     `json:"unread_notifications"`
	LastWeek            []DailyCount            `json:"last_week"`
	TopDenialReasons    []ReasonCount           `json:"top_denial_reasons"`
	PresentUsers        []PresentUser           `json:"present_users"`
	Hourly              []HourlyCount           `json:"hourly"`
	SuccessTrend        []DailyRate             `json:"success_trend"`
	TopUsers            []UserActivity          `json:"top_users"`
	NotificationTypes   []NotificationTypeCount `json:"notification_types"`
}

// Session is a persisted manager session.
type Session struct {
	ID        string
	ManagerID int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
