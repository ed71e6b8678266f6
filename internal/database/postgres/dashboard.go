package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/facepass/internal/database"
)

// DashboardRepository computes dashboard aggregates
type DashboardRepository struct {
	pool *Pool
}

// NewDashboardRepository creates a new PostgreSQL dashboard repository
func NewDashboardRepository(pool *Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DailyCounts returns allowed/denied counts per day for the last n days, oldest first.
// Days without attempts are included with zero counts.
func (r *DashboardRepository) DailyCounts(ctx context.Context, days int) ([]database.DailyCount, error) {
	if days <= 0 {
		return []database.DailyCount{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT d.day,
			COUNT(a.id) FILTER (WHERE a.access_allowed),
			COUNT(a.id) FILTER (WHERE NOT a.access_allowed)
		FROM generate_series(CURRENT_DATE - ($1::int - 1), CURRENT_DATE, INTERVAL '1 day') AS d(day)
		LEFT JOIN access_registers a
			ON a.created_at >= d.day AND a.created_at < d.day + INTERVAL '1 day'
		GROUP BY d.day
		ORDER BY d.day
	`, days)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	result := make([]database.DailyCount, 0, days)
	for rows.Next() {
		var c database.DailyCount
		if err := rows.Scan(&c.Day, &c.Allowed, &c.Denied); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return result, nil
}

// TopDenialReasons returns the most frequent denial reasons since the given time
func (r *DashboardRepository) TopDenialReasons(ctx context.Context, since time.Time, limit int) ([]database.ReasonCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reason_denied, COUNT(*) AS n
		FROM access_registers
		WHERE NOT access_allowed AND created_at >= $1 AND reason_denied <> ''
		GROUP BY reason_denied
		ORDER BY n DESC, reason_denied
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top denial reasons: %w", err)
	}
	defer rows.Close()

	result := []database.ReasonCount{}
	for rows.Next() {
		var c database.ReasonCount
		if err := rows.Scan(&c.Reason, &c.Count); err != nil {
			return nil, fmt.Errorf("scan denial reason: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate denial reasons: %w", err)
	}
	return result, nil
}

// HourlyCounts returns allowed/denied counts for each hour of the day that
// starts at dayStart. Hours without attempts are included with zero counts.
func (r *DashboardRepository) HourlyCounts(ctx context.Context, dayStart time.Time) ([]database.HourlyCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.hour,
			COUNT(a.id) FILTER (WHERE a.access_allowed),
			COUNT(a.id) FILTER (WHERE NOT a.access_allowed)
		FROM generate_series(0, 23) AS h(hour)
		LEFT JOIN access_registers a
			ON a.created_at >= $1::timestamptz + h.hour * INTERVAL '1 hour'
			AND a.created_at < $1::timestamptz + (h.hour + 1) * INTERVAL '1 hour'
		GROUP BY h.hour
		ORDER BY h.hour
	`, dayStart)
	if err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	defer rows.Close()

	result := make([]database.HourlyCount, 0, 24)
	for rows.Next() {
		var c database.HourlyCount
		if err := rows.Scan(&c.Hour, &c.Allowed, &c.Denied); err != nil {
			return nil, fmt.Errorf("scan hourly count: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly counts: %w", err)
	}
	return result, nil
}

// PresentUsers returns approved users whose latest allowed access since the
// given time was not at an exit terminal, ordered by name.
func (r *DashboardRepository) PresentUsers(ctx context.Context, since time.Time) ([]database.PresentUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.position, last.type_access, last.created_at
		FROM users u
		JOIN (
			SELECT DISTINCT ON (user_id) user_id, type_access, created_at
			FROM access_registers
			WHERE access_allowed AND user_id IS NOT NULL AND created_at >= $1
			ORDER BY user_id, created_at DESC, id DESC
		) last ON last.user_id = u.id
		WHERE u.approved AND last.type_access <> $2
		ORDER BY u.name, u.id
	`, since, database.AccessTypeExit)
	if err != nil {
		return nil, fmt.Errorf("present users: %w", err)
	}
	defer rows.Close()

	result := []database.PresentUser{}
	for rows.Next() {
		var p database.PresentUser
		if err := rows.Scan(&p.UserID, &p.Name, &p.Email, &p.Position, &p.TypeAccess, &p.LastAccess); err != nil {
			return nil, fmt.Errorf("scan present user: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate present users: %w", err)
	}
	return result, nil
}

// TopUsers returns the users with the most allowed accesses since the given time
func (r *DashboardRepository) TopUsers(ctx context.Context, since time.Time, limit int) ([]database.UserActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.position, COUNT(a.id) AS n, MAX(a.created_at)
		FROM users u
		JOIN access_registers a ON a.user_id = u.id
		WHERE a.access_allowed AND a.created_at >= $1
		GROUP BY u.id, u.name, u.position
		ORDER BY n DESC, u.name, u.id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	result := []database.UserActivity{}
	for rows.Next() {
		var u database.UserActivity
		if err := rows.Scan(&u.UserID, &u.Name, &u.Position, &u.AccessCount, &u.LastAccess); err != nil {
			return nil, fmt.Errorf("scan user activity: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user activity: %w", err)
	}
	return result, nil
}

// NotificationsByType counts notifications per type since the given time, most frequent first
func (r *DashboardRepository) NotificationsByType(ctx context.Context, since time.Time) ([]database.NotificationTypeCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type_notification, COUNT(*) AS n,
			COUNT(*) FILTER (WHERE read),
			COUNT(*) FILTER (WHERE NOT read)
		FROM notifications
		WHERE created_at >= $1
		GROUP BY type_notification
		ORDER BY n DESC, type_notification
	`, since)
	if err != nil {
		return nil, fmt.Errorf("notifications by type: %w", err)
	}
	defer rows.Close()

	result := []database.NotificationTypeCount{}
	for rows.Next() {
		var c database.NotificationTypeCount
		if err := rows.Scan(&c.Type, &c.Count, &c.Read, &c.Unread); err != nil {
			return nil, fmt.Errorf("scan notification type: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification types: %w", err)
	}
	return result, nil
}
