// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
)

// MockDescriptorStore is a mock implementation of database.DescriptorWriter
type MockDescriptorStore struct {
	mu          sync.RWMutex
	descriptors map[int64]*database.StoredDescriptor
	nextID      int64

	// Error injection
	GetError    error
	ListError   error
	SaveError   error
	DeleteError error

	// ListCalls counts ListDescriptors invocations
	ListCalls int
}

// NewMockDescriptorStore creates a new mock descriptor store
func NewMockDescriptorStore() *MockDescriptorStore {
	return &MockDescriptorStore{descriptors: make(map[int64]*database.StoredDescriptor)}
}

// AddDescriptor adds a descriptor to the mock store
func (m *MockDescriptorStore) AddDescriptor(userID int64, descriptor []float32) {
	if _, err := m.SaveDescriptor(context.Background(), userID, descriptor, "mock"); err != nil {
		panic(err)
	}
}

// GetDescriptor retrieves the descriptor of a user
func (m *MockDescriptorStore) GetDescriptor(ctx context.Context, userID int64) (*database.StoredDescriptor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.descriptors[userID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

// ListDescriptors returns all descriptors ordered by user ID
func (m *MockDescriptorStore) ListDescriptors(ctx context.Context) ([]database.StoredDescriptor, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.StoredDescriptor, 0, len(m.descriptors))
	for _, d := range m.descriptors {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// Count returns the number of descriptors
func (m *MockDescriptorStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.descriptors), nil
}

// SaveDescriptor upserts the descriptor of a user
func (m *MockDescriptorStore) SaveDescriptor(ctx context.Context, userID int64, descriptor []float32, model string) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.descriptors[userID]; ok {
		existing.Descriptor = slices.Clone(descriptor)
		existing.Model = model
		existing.Dim = len(descriptor)
		existing.UpdatedAt = now
		return existing.ID, nil
	}
	m.nextID++
	m.descriptors[userID] = &database.StoredDescriptor{
		ID:         m.nextID,
		UserID:     userID,
		Descriptor: slices.Clone(descriptor),
		Model:      model,
		Dim:        len(descriptor),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return m.nextID, nil
}

// DeleteDescriptor removes the descriptor of a user
func (m *MockDescriptorStore) DeleteDescriptor(ctx context.Context, userID int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.descriptors, userID)
	return nil
}

// MockUserStore is a mock implementation of database.UserWriter
type MockUserStore struct {
	mu     sync.RWMutex
	users  map[int64]*database.User
	nextID int64

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
}

// NewMockUserStore creates a new mock user store
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{users: make(map[int64]*database.User)}
}

// AddUser adds a user to the mock store, keeping its ID if set
func (m *MockUserStore) AddUser(u database.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		m.nextID++
		u.ID = m.nextID
	} else if u.ID > m.nextID {
		m.nextID = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = &u
	return u.ID
}

// GetUser retrieves a user by ID
func (m *MockUserStore) GetUser(ctx context.Context, id int64) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves a user by e-mail
func (m *MockUserStore) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// ListUsers returns users filtered by approval state, newest first
func (m *MockUserStore) ListUsers(ctx context.Context, approved *bool) ([]database.User, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.User, 0, len(m.users))
	for _, u := range m.users {
		if approved != nil && u.Approved != *approved {
			continue
		}
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// CountUsers returns the total and approved user counts
func (m *MockUserStore) CountUsers(ctx context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	approved := 0
	for _, u := range m.users {
		if u.Approved {
			approved++
		}
	}
	return len(m.users), approved, nil
}

// CreateUser inserts a new pending user
func (m *MockUserStore) CreateUser(ctx context.Context, user *database.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	user.Approved = false
	user.ID = m.AddUser(*user)
	return nil
}

// SetApproved changes the approval state of a user
func (m *MockUserStore) SetApproved(ctx context.Context, id int64, approved bool) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	u.Approved = approved
	return true, nil
}

// UpdateUser overwrites the editable fields of a user
func (m *MockUserStore) UpdateUser(ctx context.Context, user *database.User) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user.ID]
	if !ok {
		return false, nil
	}
	for id, other := range m.users {
		if id != user.ID && (strings.EqualFold(other.Email, user.Email) || (user.CPF != "" && other.CPF == user.CPF)) {
			return false, database.ErrDuplicateUser
		}
	}
	u.Name = user.Name
	u.Email = user.Email
	u.CPF = user.CPF
	u.Position = user.Position
	u.Approved = user.Approved
	return true, nil
}

// DeleteUser removes a user
func (m *MockUserStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

// MockRegisterStore is a mock implementation of database.RegisterWriter
type MockRegisterStore struct {
	mu        sync.RWMutex
	registers []database.AccessRegister

	// Error injection
	SaveError error
	ListError error

	// Saved receives every saved register
	Saved chan database.AccessRegister
}

// NewMockRegisterStore creates a new mock register store
func NewMockRegisterStore() *MockRegisterStore {
	return &MockRegisterStore{Saved: make(chan database.AccessRegister, 100)}
}

// SaveRegister appends a register
func (m *MockRegisterStore) SaveRegister(ctx context.Context, register *database.AccessRegister) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	m.mu.Lock()
	register.ID = int64(len(m.registers) + 1)
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now()
	}
	m.registers = append(m.registers, *register)
	m.mu.Unlock()

	select {
	case m.Saved <- *register:
	default:
	}
	return register.ID, nil
}

// Registers returns a copy of all saved registers
func (m *MockRegisterStore) Registers() []database.AccessRegister {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.registers)
}

// ListRegisters returns registers matching the filter, newest first
func (m *MockRegisterStore) ListRegisters(ctx context.Context, filter database.RegisterFilter) ([]database.AccessRegister, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AccessRegister
	for i := len(m.registers) - 1; i >= 0; i-- {
		r := m.registers[i]
		if !database.NameContains(r.UserName, filter.UserName) {
			continue
		}
		if filter.Status == database.StatusAllowed && !r.AccessAllowed {
			continue
		}
		if filter.Status == database.StatusDenied && r.AccessAllowed {
			continue
		}
		if filter.Location != "" && r.Location != filter.Location {
			continue
		}
		if filter.Start != nil && r.CreatedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && !r.CreatedAt.Before(*filter.End) {
			continue
		}
		result = append(result, r)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []database.AccessRegister{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// GetRegister retrieves a register by ID
func (m *MockRegisterStore) GetRegister(ctx context.Context, id int64) (*database.AccessRegister, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.registers {
		if m.registers[i].ID == id {
			r := m.registers[i]
			return &r, nil
		}
	}
	return nil, nil
}

// Stats aggregates registers created in [start, end)
func (m *MockRegisterStore) Stats(ctx context.Context, start, end time.Time) (database.AccessStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	allowed, denied := 0, 0
	for _, r := range m.registers {
		if r.CreatedAt.Before(start) || !r.CreatedAt.Before(end) {
			continue
		}
		if r.AccessAllowed {
			allowed++
		} else {
			denied++
		}
	}
	return database.NewAccessStats(allowed, denied), nil
}

// CountSince returns the number of registers created at or after since
func (m *MockRegisterStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.registers {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// MockNotificationStore is a mock implementation of database.NotificationWriter
type MockNotificationStore struct {
	mu            sync.RWMutex
	notifications []database.Notification

	// Error injection
	CreateError error

	// Created receives every created notification
	Created chan database.Notification
}

// NewMockNotificationStore creates a new mock notification store
func NewMockNotificationStore() *MockNotificationStore {
	return &MockNotificationStore{Created: make(chan database.Notification, 100)}
}

// CreateNotification inserts a notification
func (m *MockNotificationStore) CreateNotification(ctx context.Context, n *database.Notification) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	n.ID = int64(len(m.notifications) + 1)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications = append(m.notifications, *n)
	m.mu.Unlock()

	select {
	case m.Created <- *n:
	default:
	}
	return nil
}

// Notifications returns a copy of all notifications that were not deleted
func (m *MockNotificationStore) Notifications() []database.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Notification
	for _, n := range m.notifications {
		if n.ID != 0 {
			result = append(result, n)
		}
	}
	return result
}

// ListNotifications returns notifications of a manager, newest first
func (m *MockNotificationStore) ListNotifications(ctx context.Context, managerID int64, unreadOnly bool) ([]database.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []database.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.ID == 0 || n.ManagerID != managerID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

// CountUnread returns the number of unread notifications of a manager
func (m *MockNotificationStore) CountUnread(ctx context.Context, managerID int64) (int, error) {
	list, err := m.ListNotifications(ctx, managerID, true)
	return len(list), err
}

// MarkRead marks a notification of the manager as read
func (m *MockNotificationStore) MarkRead(ctx context.Context, managerID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].ManagerID == managerID {
			m.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

// DeleteNotification removes a notification of the manager
func (m *MockNotificationStore) DeleteNotification(ctx context.Context, managerID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].ManagerID == managerID {
			m.notifications[i].ID = 0
			return true, nil
		}
	}
	return false, nil
}

// MockManagerStore is a mock implementation of database.ManagerWriter
type MockManagerStore struct {
	mu       sync.RWMutex
	managers []database.Manager
}

// NewMockManagerStore creates a new mock manager store
func NewMockManagerStore() *MockManagerStore {
	return &MockManagerStore{}
}

// CreateManager inserts a manager
func (m *MockManagerStore) CreateManager(ctx context.Context, mgr *database.Manager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mgr.ID = int64(len(m.managers) + 1)
	if mgr.CreatedAt.IsZero() {
		mgr.CreatedAt = time.Now()
	}
	m.managers = append(m.managers, *mgr)
	return nil
}

// GetManager retrieves a manager by ID
func (m *MockManagerStore) GetManager(ctx context.Context, id int64) (*database.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.managers {
		if m.managers[i].ID == id {
			mgr := m.managers[i]
			return &mgr, nil
		}
	}
	return nil, nil
}

// GetManagerByEmail retrieves a manager by e-mail
func (m *MockManagerStore) GetManagerByEmail(ctx context.Context, email string) (*database.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.managers {
		if strings.EqualFold(m.managers[i].Email, email) {
			mgr := m.managers[i]
			return &mgr, nil
		}
	}
	return nil, nil
}

// ListManagers returns all managers ordered by ID
func (m *MockManagerStore) ListManagers(ctx context.Context) ([]database.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.managers), nil
}

// MockDashboardReader is a mock implementation of database.DashboardReader
type MockDashboardReader struct {
	Days          []database.DailyCount
	Reasons       []database.ReasonCount
	Hours         []database.HourlyCount
	Present       []database.PresentUser
	Top           []database.UserActivity
	Notifications []database.NotificationTypeCount
	Error         error

	// DaysRequested records the day counts passed to DailyCounts.
	DaysRequested []int
}

// DailyCounts returns the configured daily counts
func (m *MockDashboardReader) DailyCounts(ctx context.Context, days int) ([]database.DailyCount, error) {
	m.DaysRequested = append(m.DaysRequested, days)
	if len(m.Days) > days {
		return m.Days[len(m.Days)-days:], m.Error
	}
	return m.Days, m.Error
}

// TopDenialReasons returns the configured denial reasons
func (m *MockDashboardReader) TopDenialReasons(ctx context.Context, since time.Time, limit int) ([]database.ReasonCount, error) {
	return m.Reasons, m.Error
}

// HourlyCounts returns the configured hourly counts
func (m *MockDashboardReader) HourlyCounts(ctx context.Context, dayStart time.Time) ([]database.HourlyCount, error) {
	return m.Hours, m.Error
}

// PresentUsers returns the configured present users
func (m *MockDashboardReader) PresentUsers(ctx context.Context, since time.Time) ([]database.PresentUser, error) {
	return m.Present, m.Error
}

// TopUsers returns at most limit of the configured users
func (m *MockDashboardReader) TopUsers(ctx context.Context, since time.Time, limit int) ([]database.UserActivity, error) {
	if len(m.Top) > limit {
		return m.Top[:limit], m.Error
	}
	return m.Top, m.Error
}

// NotificationsByType returns the configured notification counts
func (m *MockDashboardReader) NotificationsByType(ctx context.Context, since time.Time) ([]database.NotificationTypeCount, error) {
	return m.Notifications, m.Error
}

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.Session
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]database.Session)}
}

// SaveSession stores a session
func (m *MockSessionStore) SaveSession(ctx context.Context, s *database.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

// GetSession retrieves an unexpired session
func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*database.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

// DeleteSession removes a session
func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// PurgeExpiredSessions removes expired sessions
func (m *MockSessionStore) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
