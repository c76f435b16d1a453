package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tourbook/internal/domain"
	"tourbook/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	var rawMeta sql.NullString
	if len(n.Metadata) > 0 {
		encoded, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		rawMeta = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `INSERT INTO notifications (id, user_id, title, body, category, metadata, is_read, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.Body, n.Category, rawMeta, n.IsRead, now)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.CreatedAt = now
	return nil
}

func (db *DB) GetUserNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	query := `SELECT id, user_id, title, body, category, metadata, is_read, created_at
	          FROM notifications WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		var rawMeta sql.NullString
		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Category, &rawMeta, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if rawMeta.Valid {
			if err := json.Unmarshal([]byte(rawMeta.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
			}
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (db *DB) MarkNotificationRead(ctx context.Context, id, userID string) error {
	query := `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`
	result, err := db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`
	var count int
	if err := db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
