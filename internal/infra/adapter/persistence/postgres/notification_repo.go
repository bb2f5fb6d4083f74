package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

type NotificationRepo struct{ db DBTX }

func NewNotificationRepo(db DBTX) repository.NotificationRepository {
	return &NotificationRepo{db: db}
}

const notificationColumns = `
id, recipient_id, type, title, message, channels, status, priority,
template_id, template_variables, scheduled_for, sent_at, delivered_at, read_at,
expires_at, metadata, retry_count, max_retries, last_error, created_at, updated_at, version`

func scanNotification(s scanner) (*entity.Notification, error) {
	var (
		n                         entity.Notification
		channels, variables, meta []byte
	)
	if err := s.Scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &channels, &n.Status, &n.Priority,
		&n.TemplateID, &variables, &n.ScheduledFor, &n.SentAt, &n.DeliveredAt, &n.ReadAt,
		&n.ExpiresAt, &meta, &n.RetryCount, &n.MaxRetries, &n.LastError, &n.CreatedAt, &n.UpdatedAt, &n.Version,
	); err != nil {
		return nil, err
	}
	if err := unjsonb(channels, &n.Channels); err != nil {
		return nil, err
	}
	if err := unjsonb(variables, &n.TemplateVariables); err != nil {
		return nil, err
	}
	if err := unjsonb(meta, &n.Metadata); err != nil {
		return nil, err
	}
	return &n, nil
}

func (repo *NotificationRepo) Get(ctx context.Context, id string) (*entity.Notification, error) {
	query := `SELECT` + notificationColumns + `
FROM notifications
WHERE id = $1`
	n, err := scanNotification(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return n, nil
}

func notificationArgs(n *entity.Notification) ([]any, error) {
	channels, err := jsonb(n.Channels)
	if err != nil {
		return nil, err
	}
	variables, err := jsonb(n.TemplateVariables)
	if err != nil {
		return nil, err
	}
	meta, err := jsonb(n.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, channels, n.Status, n.Priority,
		n.TemplateID, variables, n.ScheduledFor, n.SentAt, n.DeliveredAt, n.ReadAt,
		n.ExpiresAt, meta, n.RetryCount, n.MaxRetries, n.LastError, n.CreatedAt, n.UpdatedAt, n.Version,
	}, nil
}

func (repo *NotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	const query = `
INSERT INTO notifications (` + notificationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	n.Version = 1
	args, err := notificationArgs(n)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update writes every mutable column when n.Version matches the stored row,
// and bumps the version. A stored cancelled or expired status is never
// overwritten with a different one.
func (repo *NotificationRepo) Update(ctx context.Context, n *entity.Notification) error {
	const query = `
UPDATE notifications SET
    recipient_id = $2, type = $3, title = $4, message = $5, channels = $6,
    status = $7, priority = $8, template_id = $9, template_variables = $10,
    scheduled_for = $11, sent_at = $12, delivered_at = $13, read_at = $14,
    expires_at = $15, metadata = $16, retry_count = $17, max_retries = $18,
    last_error = $19, updated_at = $20, version = version + 1
WHERE id = $1 AND version = $21
  AND (status NOT IN ('cancelled', 'expired') OR status = $7)`
	args, err := notificationArgs(n)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	// created_at is immutable
	args = append(args[:19], args[20], args[21])
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if ok {
		n.Version++
		return nil
	}

	found, err := exists(ctx, repo.db, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, n.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if !found {
		return entity.ErrNotificationNotFound
	}
	return entity.ErrConcurrentModification
}

func (repo *NotificationRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	query := `SELECT` + notificationColumns + `
FROM notifications
WHERE status = 'pending'
  AND (scheduled_for IS NULL OR scheduled_for <= $1)
ORDER BY COALESCE(scheduled_for, created_at) ASC
LIMIT $2`
	return repo.list(ctx, "ListDueScheduled", query, now, limit)
}

func (repo *NotificationRepo) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Notification, error) {
	query := `SELECT` + notificationColumns + `
FROM notifications
WHERE status = 'processing'
  AND updated_at <= $1
ORDER BY updated_at ASC
LIMIT $2`
	return repo.list(ctx, "ListStuck", query, olderThan, limit)
}

func (repo *NotificationRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	query := `SELECT` + notificationColumns + `
FROM notifications
WHERE expires_at IS NOT NULL
  AND expires_at <= $1
  AND status NOT IN ('delivered', 'read', 'cancelled', 'expired')
  AND NOT (status = 'failed' AND retry_count >= max_retries)
ORDER BY expires_at ASC
LIMIT $2`
	return repo.list(ctx, "ListExpirable", query, now, limit)
}

func (repo *NotificationRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Notification, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.Notification, 0, 32)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
