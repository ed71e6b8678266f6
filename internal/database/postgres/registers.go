package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
)

// RegisterRepository provides PostgreSQL-backed access log storage
type RegisterRepository struct {
	pool *Pool
}

// NewRegisterRepository creates a new PostgreSQL register repository
func NewRegisterRepository(pool *Pool) *RegisterRepository {
	return &RegisterRepository{pool: pool}
}

const registerColumns = `id, attempt_id, user_id, user_name, created_at, type_access,
	access_allowed, confidence, reason_denied, location, capture_hash`

func scanRegister(scanner interface{ Scan(...any) error }) (database.AccessRegister, error) {
	var r database.AccessRegister
	var userID sql.NullInt64
	err := scanner.Scan(&r.ID, &r.AttemptID, &userID, &r.UserName, &r.CreatedAt, &r.TypeAccess,
		&r.AccessAllowed, &r.Confidence, &r.ReasonDenied, &r.Location, &r.CaptureHash)
	if err != nil {
		return r, err //nolint:wrapcheck // wrapped by callers
	}
	if userID.Valid {
		r.UserID = &userID.Int64
	}
	return r, nil
}

// SaveRegister appends an access attempt and returns its ID
func (r *RegisterRepository) SaveRegister(ctx context.Context, reg *database.AccessRegister) (int64, error) {
	query := `
		INSERT INTO access_registers (attempt_id, user_id, user_name, user_name_search, created_at,
			type_access, access_allowed, confidence, reason_denied, location, capture_hash, captured_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (attempt_id) DO UPDATE SET attempt_id = EXCLUDED.attempt_id
		RETURNING id
	`
	createdAt := reg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var userID sql.NullInt64
	if reg.UserID != nil {
		userID = sql.NullInt64{Int64: *reg.UserID, Valid: true}
	}

	err := r.pool.QueryRow(ctx, query,
		reg.AttemptID, userID, reg.UserName, database.FoldName(reg.UserName), createdAt,
		reg.TypeAccess, reg.AccessAllowed, reg.Confidence, reg.ReasonDenied, reg.Location,
		reg.CaptureHash, reg.CapturedImage,
	).Scan(&reg.ID)
	if err != nil {
		return 0, fmt.Errorf("save register: %w", err)
	}
	reg.CreatedAt = createdAt
	return reg.ID, nil
}

// buildRegisterWhere translates a filter into a WHERE clause and its arguments.
func buildRegisterWhere(filter database.RegisterFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if pattern := database.NameContainsPattern(filter.UserName); pattern != "" {
		add(`user_name_search LIKE $%d ESCAPE '\'`, pattern)
	}
	switch filter.Status {
	case database.StatusAllowed:
		conds = append(conds, "access_allowed")
	case database.StatusDenied:
		conds = append(conds, "NOT access_allowed")
	}
	if filter.Location != "" {
		add("location = $%d", filter.Location)
	}
	if filter.Start != nil {
		add("created_at >= $%d", *filter.Start)
	}
	if filter.End != nil {
		add("created_at < $%d", *filter.End)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListRegisters returns registers matching the filter, newest first
func (r *RegisterRepository) ListRegisters(ctx context.Context, filter database.RegisterFilter) ([]database.AccessRegister, error) {
	where, args := buildRegisterWhere(filter)
	query := "SELECT " + registerColumns + " FROM access_registers" + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registers: %w", err)
	}
	defer rows.Close()

	registers := []database.AccessRegister{}
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, fmt.Errorf("scan register: %w", err)
		}
		registers = append(registers, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registers: %w", err)
	}
	return registers, nil
}

// GetRegister retrieves a register by ID, returns nil if not found
func (r *RegisterRepository) GetRegister(ctx context.Context, id int64) (*database.AccessRegister, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+registerColumns+", captured_image FROM access_registers WHERE id = $1", id)

	var reg database.AccessRegister
	var userID sql.NullInt64
	err := row.Scan(&reg.ID, &reg.AttemptID, &userID, &reg.UserName, &reg.CreatedAt, &reg.TypeAccess,
		&reg.AccessAllowed, &reg.Confidence, &reg.ReasonDenied, &reg.Location, &reg.CaptureHash, &reg.CapturedImage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get register: %w", err)
	}
	if userID.Valid {
		reg.UserID = &userID.Int64
	}
	return &reg, nil
}

// Stats aggregates registers created in [start, end)
func (r *RegisterRepository) Stats(ctx context.Context, start, end time.Time) (database.AccessStats, error) {
	var allowed, denied int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE access_allowed), COUNT(*) FILTER (WHERE NOT access_allowed)
		FROM access_registers
		WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&allowed, &denied)
	if err != nil {
		return database.AccessStats{}, fmt.Errorf("register stats: %w", err)
	}
	return database.NewAccessStats(allowed, denied), nil
}

// CountSince returns the number of registers created at or after since
func (r *RegisterRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM access_registers WHERE created_at >= $1", since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registers: %w", err)
	}
	return count, nil
}
