package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

type PreferenceRepo struct{ db DBTX }

func NewPreferenceRepo(db DBTX) repository.PreferenceRepository {
	return &PreferenceRepo{db: db}
}

func (repo *PreferenceRepo) Get(ctx context.Context, userID string, typ entity.NotificationType) (*entity.NotificationPreference, error) {
	const query = `
SELECT id, user_id, type, email, sms, push, in_app, frequency,
       quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
       metadata, created_at, updated_at
FROM notification_preferences
WHERE user_id = $1 AND type = $2`
	var (
		p          entity.NotificationPreference
		start, end sql.NullString
		meta       []byte
	)
	err := repo.db.QueryRowContext(ctx, query, userID, typ).Scan(
		&p.ID, &p.UserID, &p.Type, &p.Email, &p.SMS, &p.Push, &p.InApp, &p.Frequency,
		&p.QuietHoursEnabled, &start, &end, &p.Timezone,
		&meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	p.QuietHoursStart = start.String
	p.QuietHoursEnd = end.String
	if err := unjsonb(meta, &p.Metadata); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &p, nil
}

// Upsert replaces the (user, type) row. created_at of an existing row is kept.
func (repo *PreferenceRepo) Upsert(ctx context.Context, p *entity.NotificationPreference) error {
	const query = `
INSERT INTO notification_preferences (
    id, user_id, type, email, sms, push, in_app, frequency,
    quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
    metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (user_id, type) DO UPDATE SET
    email = EXCLUDED.email,
    sms = EXCLUDED.sms,
    push = EXCLUDED.push,
    in_app = EXCLUDED.in_app,
    frequency = EXCLUDED.frequency,
    quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
    quiet_hours_start = EXCLUDED.quiet_hours_start,
    quiet_hours_end = EXCLUDED.quiet_hours_end,
    timezone = EXCLUDED.timezone,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at`
	meta, err := jsonb(p.Metadata)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Type, p.Email, p.SMS, p.Push, p.InApp, p.Frequency,
		p.QuietHoursEnabled, nullString(p.QuietHoursStart), nullString(p.QuietHoursEnd), p.Timezone,
		meta, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
