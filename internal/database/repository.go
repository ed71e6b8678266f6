package database

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateUser is returned when a write would give two users the same
// e-mail or CPF.
var ErrDuplicateUser = errors.New("user with this email or CPF already exists")

// DescriptorReader provides read-only access to enrolled face descriptors
type DescriptorReader interface {
	// GetDescriptor retrieves the descriptor of a user, returns nil if not enrolled
	GetDescriptor(ctx context.Context, userID int64) (*StoredDescriptor, error)
	// ListDescriptors returns every enrolled descriptor ordered by user ID
	ListDescriptors(ctx context.Context) ([]StoredDescriptor, error)
	// Count returns the number of enrolled descriptors
	Count(ctx context.Context) (int, error)
}

// DescriptorWriter provides write access to face descriptors
type DescriptorWriter interface {
	DescriptorReader

	// SaveDescriptor stores the descriptor of a user, replacing any previous one.
	// Returns the descriptor row ID.
	SaveDescriptor(ctx context.Context, userID int64, descriptor []float32, model string) (int64, error)

	// DeleteDescriptor removes the descriptor of a user
	DeleteDescriptor(ctx context.Context, userID int64) error
}

// UserReader provides read-only access to users
type UserReader interface {
	// GetUser retrieves a user by ID, returns nil if not found
	GetUser(ctx context.Context, id int64) (*User, error)
	// GetUserByEmail retrieves a user by e-mail, returns nil if not found
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ListUsers returns users filtered by approval state (nil means all), newest first
	ListUsers(ctx context.Context, approved *bool) ([]User, error)
	// CountUsers returns the total and approved user counts
	CountUsers(ctx context.Context) (total int, approved int, err error)
}

// UserWriter provides write access to users
type UserWriter interface {
	UserReader

	// CreateUser inserts a new user pending approval and sets its ID
	CreateUser(ctx context.Context, user *User) error
	// SetApproved changes the approval state, returns false if the user does not exist
	SetApproved(ctx context.Context, id int64, approved bool) (bool, error)
	// UpdateUser overwrites name, e-mail, CPF, position and approval of
	// user.ID, returns false if the user does not exist
	UpdateUser(ctx context.Context, user *User) (bool, error)
	// DeleteUser removes a user and its descriptor, returns false if the user does not exist
	DeleteUser(ctx context.Context, id int64) (bool, error)
}

// RegisterReader provides read-only access to the access log
type RegisterReader interface {
	// ListRegisters returns registers matching the filter, newest first
	ListRegisters(ctx context.Context, filter RegisterFilter) ([]AccessRegister, error)
	// GetRegister retrieves a register by ID, returns nil if not found
	GetRegister(ctx context.Context, id int64) (*AccessRegister, error)
	// Stats aggregates registers created in [start, end)
	Stats(ctx context.Context, start, end time.Time) (AccessStats, error)
	// CountSince returns the number of registers created at or after since
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// RegisterWriter provides write access to the access log
type RegisterWriter interface {
	RegisterReader

	// SaveRegister appends an access attempt and returns its ID
	SaveRegister(ctx context.Context, register *AccessRegister) (int64, error)
}

// NotificationReader provides read-only access to manager notifications
type NotificationReader interface {
	// ListNotifications returns notifications of a manager, newest first
	ListNotifications(ctx context.Context, managerID int64, unreadOnly bool) ([]Notification, error)
	// CountUnread returns the number of unread notifications of a manager
	CountUnread(ctx context.Context, managerID int64) (int, error)
}

// NotificationWriter provides write access to manager notifications
type NotificationWriter interface {
	NotificationReader

	// CreateNotification inserts a notification and sets its ID
	CreateNotification(ctx context.Context, n *Notification) error
	// MarkRead marks a notification as read, returns false if it does not belong to the manager
	MarkRead(ctx context.Context, managerID, id int64) (bool, error)
	// DeleteNotification removes a notification, returns false if it does not belong to the manager
	DeleteNotification(ctx context.Context, managerID, id int64) (bool, error)
}

// ManagerReader provides read-only access to managers
type ManagerReader interface {
	// GetManager retrieves a manager by ID, returns nil if not found
	GetManager(ctx context.Context, id int64) (*Manager, error)
	// GetManagerByEmail retrieves a manager by e-mail, returns nil if not found
	GetManagerByEmail(ctx context.Context, email string) (*Manager, error)
	// ListManagers returns all managers ordered by ID
	ListManagers(ctx context.Context) ([]Manager, error)
}

// ManagerWriter provides write access to managers
type ManagerWriter interface {
	ManagerReader

	// CreateManager inserts a manager and sets its ID
	CreateManager(ctx context.Context, m *Manager) error
}

// DashboardReader aggregates data for the manager dashboard
type DashboardReader interface {
	// DailyCounts returns allowed/denied counts per day for the last n days, oldest first
	DailyCounts(ctx context.Context, days int) ([]DailyCount, error)
	// TopDenialReasons returns the most frequent denial reasons since the given time
	TopDenialReasons(ctx context.Context, since time.Time, limit int) ([]ReasonCount, error)
	// HourlyCounts returns allowed/denied counts for each of the 24 hours starting at dayStart
	HourlyCounts(ctx context.Context, dayStart time.Time) ([]HourlyCount, error)
	// PresentUsers returns approved users whose latest allowed access since the given time was not an exit
	PresentUsers(ctx context.Context, since time.Time) ([]PresentUser, error)
	// TopUsers returns the users with the most allowed accesses since the given time
	TopUsers(ctx context.Context, since time.Time, limit int) ([]UserActivity, error)
	// NotificationsByType counts notifications per type since the given time
	NotificationsByType(ctx context.Context, since time.Time) ([]NotificationTypeCount, error)
}

// SessionStore persists manager sessions so they survive restarts
type SessionStore interface {
	// SaveSession stores a session
	SaveSession(ctx context.Context, s *Session) error
	// GetSession retrieves a session, returns nil if missing or expired
	GetSession(ctx context.Context, id string) (*Session, error)
	// DeleteSession removes a session
	DeleteSession(ctx context.Context, id string) error
	// PurgeExpiredSessions removes expired sessions and returns how many were removed
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}
