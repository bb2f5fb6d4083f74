package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

type TemplateRepo struct{ db DBTX }

func NewTemplateRepo(db DBTX) repository.TemplateRepository {
	return &TemplateRepo{db: db}
}

const templateColumns = `
id, name, slug, type, channel, subject, body, description, variables,
defaults, is_system, is_active, metadata, created_at, updated_at`

func scanTemplate(s scanner) (*entity.NotificationTemplate, error) {
	var (
		t                         entity.NotificationTemplate
		variables, defaults, meta []byte
	)
	if err := s.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Type, &t.Channel, &t.Subject, &t.Body, &t.Description, &variables,
		&defaults, &t.IsSystem, &t.IsActive, &meta, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unjsonb(variables, &t.Variables); err != nil {
		return nil, err
	}
	if err := unjsonb(defaults, &t.Defaults); err != nil {
		return nil, err
	}
	if err := unjsonb(meta, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func (repo *TemplateRepo) one(ctx context.Context, op, query string, args ...any) (*entity.NotificationTemplate, error) {
	t, err := scanTemplate(repo.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (repo *TemplateRepo) Get(ctx context.Context, id string) (*entity.NotificationTemplate, error) {
	return repo.one(ctx, "Get", `SELECT`+templateColumns+`
FROM notification_templates
WHERE id = $1`, id)
}

// GetBySlug returns the active template with slug on channel.
func (repo *TemplateRepo) GetBySlug(ctx context.Context, slug string, channel entity.Channel) (*entity.NotificationTemplate, error) {
	return repo.one(ctx, "GetBySlug", `SELECT`+templateColumns+`
FROM notification_templates
WHERE slug = $1 AND channel = $2 AND is_active = TRUE`, slug, channel)
}

func (repo *TemplateRepo) ListActive(ctx context.Context) ([]*entity.NotificationTemplate, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT`+templateColumns+`
FROM notification_templates
WHERE is_active = TRUE
ORDER BY channel ASC, slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.NotificationTemplate, 0, 32)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: Scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func templateArgs(t *entity.NotificationTemplate) ([]any, error) {
	variables, err := jsonb(t.Variables)
	if err != nil {
		return nil, err
	}
	defaults, err := jsonb(t.Defaults)
	if err != nil {
		return nil, err
	}
	meta, err := jsonb(t.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{
		t.ID, t.Name, t.Slug, t.Type, t.Channel, t.Subject, t.Body, t.Description, variables,
		defaults, t.IsSystem, t.IsActive, meta, t.CreatedAt, t.UpdatedAt,
	}, nil
}

// Create relies on the partial unique index over active (slug, channel).
func (repo *TemplateRepo) Create(ctx context.Context, t *entity.NotificationTemplate) error {
	const query = `
INSERT INTO notification_templates (` + templateColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	args, err := templateArgs(t)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return entity.ErrDuplicateSlug
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *TemplateRepo) Update(ctx context.Context, t *entity.NotificationTemplate) error {
	const query = `
UPDATE notification_templates SET
    name = $2, slug = $3, type = $4, channel = $5, subject = $6, body = $7,
    description = $8, variables = $9, defaults = $10, is_system = $11,
    is_active = $12, metadata = $13, updated_at = $14
WHERE id = $1`
	args, err := templateArgs(t)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	// created_at is immutable
	args = append(args[:13], args[14])
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrDuplicateSlug
		}
		return fmt.Errorf("Update: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if !ok {
		return entity.ErrTemplateNotFound
	}
	return nil
}

func (repo *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if !ok {
		return entity.ErrTemplateNotFound
	}
	return nil
}

func (repo *TemplateRepo) InUse(ctx context.Context, id string) (bool, error) {
	used, err := exists(ctx, repo.db, `SELECT EXISTS (SELECT 1 FROM notifications WHERE template_id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("InUse: %w", err)
	}
	return used, nil
}
