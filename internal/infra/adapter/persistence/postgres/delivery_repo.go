package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

type DeliveryRepo struct{ db DBTX }

func NewDeliveryRepo(db DBTX) repository.DeliveryRepository {
	return &DeliveryRepo{db: db}
}

const deliveryColumns = `
id, notification_id, channel, recipient, status, provider_message_id, error,
retry_count, max_retries, next_retry_at, sent_at, delivered_at, failed_at,
claimed_at, permanent, version, metadata, created_at, updated_at`

func scanDelivery(s scanner) (*entity.Delivery, error) {
	var (
		d    entity.Delivery
		meta []byte
	)
	if err := s.Scan(
		&d.ID, &d.NotificationID, &d.Channel, &d.Recipient, &d.Status, &d.ProviderMessageID, &d.Error,
		&d.RetryCount, &d.MaxRetries, &d.NextRetryAt, &d.SentAt, &d.DeliveredAt, &d.FailedAt,
		&d.ClaimedAt, &d.Permanent, &d.Version, &meta, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unjsonb(meta, &d.Metadata); err != nil {
		return nil, err
	}
	return &d, nil
}

func (repo *DeliveryRepo) one(ctx context.Context, op, query string, args ...any) (*entity.Delivery, error) {
	d, err := scanDelivery(repo.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func (repo *DeliveryRepo) Get(ctx context.Context, id string) (*entity.Delivery, error) {
	return repo.one(ctx, "Get", `SELECT`+deliveryColumns+`
FROM notification_deliveries
WHERE id = $1`, id)
}

func (repo *DeliveryRepo) FindByNotificationAndChannel(ctx context.Context, notificationID string, channel entity.Channel) (*entity.Delivery, error) {
	return repo.one(ctx, "FindByNotificationAndChannel", `SELECT`+deliveryColumns+`
FROM notification_deliveries
WHERE notification_id = $1 AND channel = $2`, notificationID, channel)
}

func (repo *DeliveryRepo) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*entity.Delivery, error) {
	if providerMessageID == "" {
		return nil, entity.ErrDeliveryNotFound
	}
	return repo.one(ctx, "FindByProviderMessageID", `SELECT`+deliveryColumns+`
FROM notification_deliveries
WHERE provider_message_id = $1
ORDER BY created_at DESC
LIMIT 1`, providerMessageID)
}

func (repo *DeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]*entity.Delivery, error) {
	return repo.list(ctx, "ListByNotification", `SELECT`+deliveryColumns+`
FROM notification_deliveries
WHERE notification_id = $1
ORDER BY channel ASC`, notificationID)
}

// Create inserts d with version 1. The (notification_id, channel) unique key
// turns a concurrent creation into ErrConcurrentModification.
func (repo *DeliveryRepo) Create(ctx context.Context, d *entity.Delivery) error {
	const query = `
INSERT INTO notification_deliveries (` + deliveryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16, $17, $18)
ON CONFLICT (notification_id, channel) DO NOTHING`
	meta, err := jsonb(d.Metadata)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query,
		d.ID, d.NotificationID, d.Channel, d.Recipient, d.Status, d.ProviderMessageID, d.Error,
		d.RetryCount, d.MaxRetries, d.NextRetryAt, d.SentAt, d.DeliveredAt, d.FailedAt,
		d.ClaimedAt, d.Permanent, meta, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if !ok {
		return entity.ErrConcurrentModification
	}
	d.Version = 1
	return nil
}

// Update is an optimistic write guarded by d.Version.
func (repo *DeliveryRepo) Update(ctx context.Context, d *entity.Delivery) error {
	const query = `
UPDATE notification_deliveries SET
    recipient = $3, status = $4, provider_message_id = $5, error = $6,
    retry_count = $7, max_retries = $8, next_retry_at = $9, sent_at = $10,
    delivered_at = $11, failed_at = $12, claimed_at = $13, permanent = $14,
    metadata = $15, updated_at = $16, version = version + 1
WHERE id = $1 AND version = $2`
	meta, err := jsonb(d.Metadata)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query,
		d.ID, d.Version, d.Recipient, d.Status, d.ProviderMessageID, d.Error,
		d.RetryCount, d.MaxRetries, d.NextRetryAt, d.SentAt,
		d.DeliveredAt, d.FailedAt, d.ClaimedAt, d.Permanent,
		meta, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if ok {
		d.Version++
		return nil
	}

	found, err := exists(ctx, repo.db, `SELECT EXISTS (SELECT 1 FROM notification_deliveries WHERE id = $1)`, d.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if !found {
		return entity.ErrDeliveryNotFound
	}
	return entity.ErrConcurrentModification
}

func (repo *DeliveryRepo) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]*entity.Delivery, error) {
	return repo.list(ctx, "ListDueForRetry", `SELECT`+qualified("d", deliveryColumnList)+`
FROM notification_deliveries d
JOIN notifications n ON n.id = d.notification_id
WHERE d.status = 'failed'
  AND NOT d.permanent
  AND d.retry_count < d.max_retries
  AND d.next_retry_at <= $1
  AND n.status NOT IN ('cancelled', 'expired')
ORDER BY d.next_retry_at ASC
LIMIT $2`, now, limit)
}

func (repo *DeliveryRepo) ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*entity.Delivery, error) {
	return repo.list(ctx, "ListStale", `SELECT`+deliveryColumns+`
FROM notification_deliveries
WHERE status = 'pending'
  AND claimed_at IS NOT NULL
  AND claimed_at <= $1
ORDER BY claimed_at ASC
LIMIT $2`, claimedBefore, limit)
}

func (repo *DeliveryRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Delivery, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.Delivery, 0, 16)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var deliveryColumnList = []string{
	"id", "notification_id", "channel", "recipient", "status", "provider_message_id", "error",
	"retry_count", "max_retries", "next_retry_at", "sent_at", "delivered_at", "failed_at",
	"claimed_at", "permanent", "version", "metadata", "created_at", "updated_at",
}

// qualified prefixes each column with alias for use in joins.
func qualified(alias string, cols []string) string {
	return "\n" + alias + "." + strings.Join(cols, ", "+alias+".")
}
