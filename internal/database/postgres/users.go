package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/facepass/internal/database"
)

// UserRepository provides PostgreSQL-backed user storage
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userSelect = `
	SELECT u.id, u.name, u.email, u.cpf, u.position, u.approved, u.created_at,
		EXISTS (SELECT 1 FROM face_descriptors d WHERE d.user_id = u.id)
	FROM users u
`

func scanUser(scanner interface{ Scan(...any) error }) (database.User, error) {
	var u database.User
	err := scanner.Scan(&u.ID, &u.Name, &u.Email, &u.CPF, &u.Position, &u.Approved, &u.CreatedAt, &u.HasFace)
	return u, err //nolint:wrapcheck // wrapped by callers
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*database.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUser retrieves a user by ID, returns nil if not found
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*database.User, error) {
	return r.getOne(ctx, "WHERE u.id = $1", id)
}

// GetUserByEmail retrieves a user by e-mail, returns nil if not found
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	return r.getOne(ctx, "WHERE LOWER(u.email) = LOWER($1)", email)
}

// ListUsers returns users filtered by approval state, newest first
func (r *UserRepository) ListUsers(ctx context.Context, approved *bool) ([]database.User, error) {
	query := userSelect + "WHERE ($1::boolean IS NULL OR u.approved = $1) ORDER BY u.created_at DESC, u.id DESC"
	rows, err := r.pool.Query(ctx, query, approved)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []database.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// CountUsers returns the total and approved user counts
func (r *UserRepository) CountUsers(ctx context.Context) (int, int, error) {
	var total, approved int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE approved) FROM users",
	).Scan(&total, &approved)
	if err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, approved, nil
}

// CreateUser inserts a new user pending approval and sets its ID
func (r *UserRepository) CreateUser(ctx context.Context, user *database.User) error {
	query := `
		INSERT INTO users (name, email, cpf, position, approved)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query, user.Name, user.Email, user.CPF, user.Position).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", duplicateOr(err))
	}
	user.Approved = false
	return nil
}

// SetApproved changes the approval state, returns false if the user does not exist
func (r *UserRepository) SetApproved(ctx context.Context, id int64, approved bool) (bool, error) {
	result, err := r.pool.Exec(ctx, "UPDATE users SET approved = $2 WHERE id = $1", id, approved)
	if err != nil {
		return false, fmt.Errorf("set approved: %w", err)
	}
	return affected(result)
}

// UpdateUser overwrites the editable fields of a user
func (r *UserRepository) UpdateUser(ctx context.Context, user *database.User) (bool, error) {
	query := `
		UPDATE users SET name = $2, email = $3, cpf = $4, position = $5, approved = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.CPF, user.Position, user.Approved)
	if err != nil {
		return false, fmt.Errorf("update user: %w", duplicateOr(err))
	}
	return affected(result)
}

// DeleteUser removes a user; the descriptor goes with it through ON DELETE CASCADE
func (r *UserRepository) DeleteUser(ctx context.Context, id int64) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

// duplicateOr maps a unique violation on users to database.ErrDuplicateUser.
func duplicateOr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", database.ErrDuplicateUser, pqErr.Constraint)
	}
	return err
}
