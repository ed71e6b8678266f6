package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facepass/internal/database"
)

// ManagerRepository provides PostgreSQL-backed manager storage
type ManagerRepository struct {
	pool *Pool
}

// NewManagerRepository creates a new PostgreSQL manager repository
func NewManagerRepository(pool *Pool) *ManagerRepository {
	return &ManagerRepository{pool: pool}
}

func (r *ManagerRepository) getOne(ctx context.Context, where string, arg any) (*database.Manager, error) {
	var m database.Manager
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, email, password_hash, created_at FROM managers "+where, arg,
	).Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get manager: %w", err)
	}
	return &m, nil
}

// GetManager retrieves a manager by ID, returns nil if not found
func (r *ManagerRepository) GetManager(ctx context.Context, id int64) (*database.Manager, error) {
	return r.getOne(ctx, "WHERE id = $1", id)
}

// GetManagerByEmail retrieves a manager by e-mail, returns nil if not found
func (r *ManagerRepository) GetManagerByEmail(ctx context.Context, email string) (*database.Manager, error) {
	return r.getOne(ctx, "WHERE LOWER(email) = LOWER($1)", email)
}

// ListManagers returns all managers ordered by ID
func (r *ManagerRepository) ListManagers(ctx context.Context) ([]database.Manager, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, email, password_hash, created_at FROM managers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	defer rows.Close()

	managers := []database.Manager{}
	for rows.Next() {
		var m database.Manager
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan manager: %w", err)
		}
		managers = append(managers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate managers: %w", err)
	}
	return managers, nil
}

// CreateManager inserts a manager and sets its ID
func (r *ManagerRepository) CreateManager(ctx context.Context, m *database.Manager) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO managers (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, m.Name, m.Email, m.PasswordHash).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	return nil
}
