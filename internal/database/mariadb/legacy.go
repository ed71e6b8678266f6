package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LegacyUser is a row of the legacy users table.
type LegacyUser struct {
	ID        int64
	Name      string
	Email     string
	CPF       string
	Position  string
	Approved  bool
	CreatedAt time.Time
}

// LegacyManager is a row of the legacy manager table. Password hashes are
// bcrypt and can be imported unchanged.
type LegacyManager struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
}

// LegacyEncoding is a decoded row of the legacy face_encoding table.
type LegacyEncoding struct {
	ID         int64
	UserID     int64
	Descriptor []float32
}

// ListUsers returns all legacy users ordered by ID.
func (p *Pool) ListUsers(ctx context.Context) ([]LegacyUser, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, cpf, COALESCE(position, ''), COALESCE(approved, FALSE), created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query legacy users: %w", err)
	}
	defer rows.Close()

	var users []LegacyUser
	for rows.Next() {
		var u LegacyUser
		var createdAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CPF, &u.Position, &u.Approved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan legacy user: %w", err)
		}
		u.CreatedAt = createdAt.Time
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy users: %w", err)
	}
	return users, nil
}

// ListManagers returns all legacy managers ordered by ID.
func (p *Pool) ListManagers(ctx context.Context) ([]LegacyManager, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id, name, email, password_hash FROM manager ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query legacy managers: %w", err)
	}
	defer rows.Close()

	var managers []LegacyManager
	for rows.Next() {
		var m LegacyManager
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash); err != nil {
			return nil, fmt.Errorf("scan legacy manager: %w", err)
		}
		managers = append(managers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy managers: %w", err)
	}
	return managers, nil
}

// ListEncodings returns all legacy face encodings, decoded. When a user has
// several encodings only the newest (highest ID) is kept. Rows that fail to
// decode are reported through skipped instead of failing the import.
func (p *Pool) ListEncodings(ctx context.Context) (encodings []LegacyEncoding, skipped map[int64]error, err error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id, user_id, encoding FROM face_encoding ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("query legacy encodings: %w", err)
	}
	defer rows.Close()

	byUser := make(map[int64]int)
	skipped = make(map[int64]error)
	for rows.Next() {
		var id, userID int64
		var blob []byte
		if err := rows.Scan(&id, &userID, &blob); err != nil {
			return nil, nil, fmt.Errorf("scan legacy encoding: %w", err)
		}
		vec, decodeErr := DecodeNPY(blob)
		if decodeErr != nil {
			skipped[id] = decodeErr
			continue
		}
		enc := LegacyEncoding{ID: id, UserID: userID, Descriptor: vec}
		if i, ok := byUser[userID]; ok {
			encodings[i] = enc
			continue
		}
		byUser[userID] = len(encodings)
		encodings = append(encodings, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate legacy encodings: %w", err)
	}
	return encodings, skipped, nil
}
