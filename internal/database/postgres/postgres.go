package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facepass/internal/config"
	"github.com/kozaktomas/facepass/internal/database"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Initialize connects to PostgreSQL and applies pending migrations.
func Initialize(cfg *config.DatabaseConfig, logger logrus.FieldLogger) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	pool, err := NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	applied, err := pool.Migrate(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, v := range applied {
		logger.WithField("version", v).Info("applied migration")
	}

	return pool, nil
}

// RegisterBackend registers the repositories of pool as the active storage
// backend. descriptors is registered as-is so callers can wrap it in a cache.
func RegisterBackend(pool *Pool, descriptors database.DescriptorWriter) {
	users := NewUserRepository(pool)
	registers := NewRegisterRepository(pool)
	notifications := NewNotificationRepository(pool)
	managers := NewManagerRepository(pool)
	dashboard := NewDashboardRepository(pool)
	sessions := NewSessionRepository(pool)

	database.RegisterPostgresBackend(database.Backend{
		Descriptors:   func() database.DescriptorWriter { return descriptors },
		Users:         func() database.UserWriter { return users },
		Registers:     func() database.RegisterWriter { return registers },
		Notifications: func() database.NotificationWriter { return notifications },
		Managers:      func() database.ManagerWriter { return managers },
		Dashboard:     func() database.DashboardReader { return dashboard },
		Sessions:      func() database.SessionStore { return sessions },
	})
}

// Ping verifies the database connection.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
