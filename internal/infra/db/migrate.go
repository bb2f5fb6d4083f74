package db

import (
	"database/sql"
	"fmt"
)

// schema is applied in order by MigrateUp. Every statement is idempotent.
var schema = []string{
	`
CREATE TABLE IF NOT EXISTS notification_templates (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    slug        TEXT NOT NULL,
    type        VARCHAR(20) NOT NULL,
    channel     VARCHAR(20) NOT NULL,
    subject     TEXT,
    body        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    variables   JSONB,
    defaults    JSONB,
    is_system   BOOLEAN NOT NULL DEFAULT FALSE,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS notifications (
    id                 TEXT PRIMARY KEY,
    recipient_id       TEXT NOT NULL,
    type               VARCHAR(20) NOT NULL,
    title              TEXT NOT NULL,
    message            TEXT NOT NULL,
    channels           JSONB NOT NULL,
    status             VARCHAR(20) NOT NULL,
    priority           VARCHAR(10) NOT NULL DEFAULT 'normal',
    template_id        TEXT REFERENCES notification_templates(id),
    template_variables JSONB,
    scheduled_for      TIMESTAMPTZ,
    sent_at            TIMESTAMPTZ,
    delivered_at       TIMESTAMPTZ,
    read_at            TIMESTAMPTZ,
    expires_at         TIMESTAMPTZ,
    metadata           JSONB,
    retry_count        INT NOT NULL DEFAULT 0,
    max_retries        INT NOT NULL DEFAULT 3,
    last_error         TEXT NOT NULL DEFAULT '',
    version            BIGINT NOT NULL DEFAULT 1,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_notification_retries CHECK (retry_count <= max_retries)
)`,
	`
CREATE TABLE IF NOT EXISTS notification_deliveries (
    id                  TEXT PRIMARY KEY,
    notification_id     TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    channel             VARCHAR(20) NOT NULL,
    recipient           TEXT NOT NULL DEFAULT '',
    status              VARCHAR(20) NOT NULL,
    provider_message_id TEXT NOT NULL DEFAULT '',
    error               TEXT NOT NULL DEFAULT '',
    retry_count         INT NOT NULL DEFAULT 0,
    max_retries         INT NOT NULL DEFAULT 3,
    next_retry_at       TIMESTAMPTZ,
    sent_at             TIMESTAMPTZ,
    delivered_at        TIMESTAMPTZ,
    failed_at           TIMESTAMPTZ,
    claimed_at          TIMESTAMPTZ,
    permanent           BOOLEAN NOT NULL DEFAULT FALSE,
    version             BIGINT NOT NULL DEFAULT 1,
    metadata            JSONB,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (notification_id, channel),
    CONSTRAINT chk_delivery_retries CHECK (retry_count <= max_retries)
)`,
	`
CREATE TABLE IF NOT EXISTS notification_preferences (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    type                VARCHAR(20) NOT NULL,
    email               BOOLEAN NOT NULL DEFAULT TRUE,
    sms                 BOOLEAN NOT NULL DEFAULT TRUE,
    push                BOOLEAN NOT NULL DEFAULT TRUE,
    in_app              BOOLEAN NOT NULL DEFAULT TRUE,
    frequency           VARCHAR(20) NOT NULL DEFAULT 'immediate',
    quiet_hours_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    quiet_hours_start   VARCHAR(5),
    quiet_hours_end     VARCHAR(5),
    timezone            TEXT NOT NULL DEFAULT 'UTC',
    metadata            JSONB,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, type)
)`,
	`
CREATE TABLE IF NOT EXISTS notification_analytics (
    id              TEXT PRIMARY KEY,
    notification_id TEXT,
    metric_type     VARCHAR(20) NOT NULL,
    metric_name     TEXT NOT NULL,
    value           DOUBLE PRECISION NOT NULL,
    count           BIGINT NOT NULL,
    bucket_start    TIMESTAMPTZ NOT NULL,
    bucket_end      TIMESTAMPTZ NOT NULL,
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	// one active template per (slug, channel)
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_templates_active_slug ON notification_templates(slug, channel) WHERE is_active`,
	// retry scheduler scan
	`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON notification_deliveries(next_retry_at) WHERE status = 'failed' AND NOT permanent`,
	// stale claim recovery
	`CREATE INDEX IF NOT EXISTS idx_deliveries_claimed ON notification_deliveries(claimed_at) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_provider_message ON notification_deliveries(provider_message_id) WHERE provider_message_id <> ''`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_status_scheduled ON notifications(status, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_expires ON notifications(expires_at) WHERE expires_at IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_bucket ON notification_analytics(metric_type, bucket_start)`,
}

// tables in drop order.
var tables = []string{
	"notification_analytics",
	"notification_preferences",
	"notification_deliveries",
	"notifications",
	"notification_templates",
}

// MigrateUp creates the notification schema.
func MigrateUp(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate up step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateDown drops every table created by MigrateUp, data included.
func MigrateDown(db *sql.DB) error {
	for _, table := range tables {
		if _, err := db.Exec(`DROP TABLE IF EXISTS ` + table + ` CASCADE`); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
