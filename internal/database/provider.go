package database

import (
	"context"
	"errors"
	"fmt"
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
	// Nearest returns the closest enrolled users to a descriptor
	Nearest(ctx context.Context, descriptor []float32, k int) ([]Neighbor, error)
}

// Backend holds the repository constructors of a storage backend.
type Backend struct {
	Descriptors   func() DescriptorWriter
	Users         func() UserWriter
	Registers     func() RegisterWriter
	Notifications func() NotificationWriter
	Managers      func() ManagerWriter
	Dashboard     func() DashboardReader
	Sessions      func() SessionStore
}

var (
	postgresBackend     Backend
	postgresHNSW        HNSWRebuilder // Singleton for descriptor HNSW rebuilding
	postgresInitialized bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(b Backend) {
	postgresBackend = b
	postgresInitialized = true
}

// RegisterHNSWRebuilder registers the HNSW rebuilder of the descriptor repository.
func RegisterHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresHNSW = rebuilder
}

// GetHNSWRebuilder returns the registered HNSW rebuilder, or nil if not registered.
func GetHNSWRebuilder() HNSWRebuilder {
	return postgresHNSW
}

func resolve[T any](ctor func() T, name string) (T, error) {
	var zero T
	if !postgresInitialized {
		return zero, errNotInitialized
	}
	if ctor == nil {
		return zero, fmt.Errorf("PostgreSQL %s not registered", name)
	}
	return ctor(), nil
}

// GetDescriptorWriter returns a DescriptorWriter from the PostgreSQL backend
func GetDescriptorWriter(ctx context.Context) (DescriptorWriter, error) {
	return resolve(postgresBackend.Descriptors, "descriptor repository")
}

// GetUserWriter returns a UserWriter from the PostgreSQL backend
func GetUserWriter(ctx context.Context) (UserWriter, error) {
	return resolve(postgresBackend.Users, "user repository")
}

// GetRegisterWriter returns a RegisterWriter from the PostgreSQL backend
func GetRegisterWriter(ctx context.Context) (RegisterWriter, error) {
	return resolve(postgresBackend.Registers, "register repository")
}

// GetNotificationWriter returns a NotificationWriter from the PostgreSQL backend
func GetNotificationWriter(ctx context.Context) (NotificationWriter, error) {
	return resolve(postgresBackend.Notifications, "notification repository")
}

// GetManagerWriter returns a ManagerWriter from the PostgreSQL backend
func GetManagerWriter(ctx context.Context) (ManagerWriter, error) {
	return resolve(postgresBackend.Managers, "manager repository")
}

// GetDashboardReader returns a DashboardReader from the PostgreSQL backend
func GetDashboardReader(ctx context.Context) (DashboardReader, error) {
	return resolve(postgresBackend.Dashboard, "dashboard repository")
}

// GetSessionStore returns a SessionStore from the PostgreSQL backend
func GetSessionStore(ctx context.Context) (SessionStore, error) {
	return resolve(postgresBackend.Sessions, "session repository")
}
