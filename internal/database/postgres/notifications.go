package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/facepass/internal/database"
)

// NotificationRepository provides PostgreSQL-backed manager notifications
type NotificationRepository struct {
	pool *Pool
}

// NewNotificationRepository creates a new PostgreSQL notification repository
func NewNotificationRepository(pool *Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// CreateNotification inserts a notification and sets its ID
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *database.Notification) error {
	var registerID sql.NullInt64
	if n.AccessRegisterID != nil {
		registerID = sql.NullInt64{Int64: *n.AccessRegisterID, Valid: true}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (manager_id, access_register_id, type_notification, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, n.ManagerID, registerID, n.Type, n.Message).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns notifications of a manager, newest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, managerID int64, unreadOnly bool) ([]database.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, manager_id, access_register_id, created_at, type_notification, message, read
		FROM notifications
		WHERE manager_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC, id DESC
	`, managerID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := []database.Notification{}
	for rows.Next() {
		var n database.Notification
		var registerID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.ManagerID, &registerID, &n.CreatedAt, &n.Type, &n.Message, &n.Read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if registerID.Valid {
			n.AccessRegisterID = &registerID.Int64
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

// CountUnread returns the number of unread notifications of a manager
func (r *NotificationRepository) CountUnread(ctx context.Context, managerID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE manager_id = $1 AND NOT read", managerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks a notification as read, returns false if it does not belong to the manager
func (r *NotificationRepository) MarkRead(ctx context.Context, managerID, id int64) (bool, error) {
	result, err := r.pool.Exec(ctx, "UPDATE notifications SET read = TRUE WHERE id = $1 AND manager_id = $2", id, managerID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected(result)
}

// DeleteNotification removes a notification, returns false if it does not belong to the manager
func (r *NotificationRepository) DeleteNotification(ctx context.Context, managerID, id int64) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM notifications WHERE id = $1 AND manager_id = $2", id, managerID)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	return affected(result)
}
