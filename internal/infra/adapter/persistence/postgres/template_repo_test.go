package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/infra/adapter/persistence/postgres"
)

var templateCols = []string{
	"id", "name", "slug", "type", "channel", "subject", "body", "description", "variables",
	"defaults", "is_system", "is_active", "metadata", "created_at", "updated_at",
}

func sampleTemplate() *entity.NotificationTemplate {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	subject := "Welcome {{name}}"
	return &entity.NotificationTemplate{
		ID:        "tmpl-welcome",
		Name:      "Welcome",
		Slug:      "welcome",
		Type:      entity.TypeInfo,
		Channel:   entity.ChannelEmail,
		Subject:   &subject,
		Body:      "Hello {{name}}",
		Variables: map[string]string{"name": "string"},
		Defaults:  map[string]any{"name": "there"},
		IsSystem:  true,
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func templateRow(tp *entity.NotificationTemplate) *sqlmock.Rows {
	return sqlmock.NewRows(templateCols).AddRow(
		tp.ID, tp.Name, tp.Slug, string(tp.Type), string(tp.Channel), *tp.Subject, tp.Body, tp.Description,
		[]byte(`{"name":"string"}`), []byte(`{"name":"there"}`), tp.IsSystem, tp.IsActive, nil,
		tp.CreatedAt, tp.UpdatedAt,
	)
}

func TestTemplateRepo_GetBySlug(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleTemplate()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE slug = $1 AND channel = $2 AND is_active = TRUE`)).
		WithArgs("welcome", "email").
		WillReturnRows(templateRow(want))

	got, err := postgres.NewTemplateRepo(db).GetBySlug(context.Background(), "welcome", entity.ChannelEmail)
	if err != nil {
		t.Fatalf("GetBySlug err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplateRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM notification_templates`).WillReturnError(sql.ErrNoRows)

	_, err := postgres.NewTemplateRepo(db).Get(context.Background(), "nope")
	if !errors.Is(err, entity.ErrTemplateNotFound) {
		t.Fatalf("err=%v, want ErrTemplateNotFound", err)
	}
}

func TestTemplateRepo_Create_DuplicateSlug(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO notification_templates`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_templates_active_slug"})

	err := postgres.NewTemplateRepo(db).Create(context.Background(), sampleTemplate())
	if !errors.Is(err, entity.ErrDuplicateSlug) {
		t.Fatalf("err=%v, want ErrDuplicateSlug", err)
	}
}

func TestTemplateRepo_Update(t *testing.T) {
	tests := []struct {
		name    string
		result  driverResult
		wantErr error
	}{
		{name: "updated", result: driverResult{affected: 1}},
		{name: "missing", result: driverResult{affected: 0}, wantErr: entity.ErrTemplateNotFound},
		{name: "slug taken", result: driverResult{err: &pgconn.PgError{Code: "23505"}}, wantErr: entity.ErrDuplicateSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			exp := mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_templates SET`))
			if tt.result.err != nil {
				exp.WillReturnError(tt.result.err)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.result.affected))
			}

			err := postgres.NewTemplateRepo(db).Update(context.Background(), sampleTemplate())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update err=%v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTemplateRepo_DeleteAndInUse(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM notifications WHERE template_id = $1)`)).
		WithArgs("tmpl-welcome").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM notification_templates`).
		WithArgs("tmpl-old").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := postgres.NewTemplateRepo(db)
	used, err := repo.InUse(context.Background(), "tmpl-welcome")
	if err != nil || !used {
		t.Fatalf("InUse used=%v err=%v", used, err)
	}
	if err := repo.Delete(context.Background(), "tmpl-old"); !errors.Is(err, entity.ErrTemplateNotFound) {
		t.Fatalf("Delete err=%v, want ErrTemplateNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTemplateRepo_ListActive(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`ORDER BY channel ASC, slug ASC`).
		WillReturnRows(templateRow(sampleTemplate()))

	got, err := postgres.NewTemplateRepo(db).ListActive(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("ListActive err=%v len=%d", err, len(got))
	}
}

type driverResult struct {
	affected int64
	err      error
}

/* preferences */

func TestPreferenceRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM notification_preferences`).
		WithArgs("user-1", "info").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "type", "email", "sms", "push", "in_app", "frequency",
			"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end", "timezone",
			"metadata", "created_at", "updated_at",
		}).AddRow(
			"p-1", "user-1", "info", true, false, true, true, "immediate",
			true, "22:00", "07:00", "Europe/Berlin",
			nil, created, created,
		))

	got, err := postgres.NewPreferenceRepo(db).Get(context.Background(), "user-1", entity.TypeInfo)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	want := &entity.NotificationPreference{
		ID: "p-1", UserID: "user-1", Type: entity.TypeInfo,
		Email: true, SMS: false, Push: true, InApp: true,
		Frequency:         entity.FrequencyImmediate,
		QuietHoursEnabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00",
		Timezone:  "Europe/Berlin",
		CreatedAt: created, UpdatedAt: created,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPreferenceRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM notification_preferences`).WillReturnError(sql.ErrNoRows)

	_, err := postgres.NewPreferenceRepo(db).Get(context.Background(), "user-2", entity.TypeSystem)
	if !errors.Is(err, entity.ErrPreferenceNotFound) {
		t.Fatalf("err=%v, want ErrPreferenceNotFound", err)
	}
}

func TestPreferenceRepo_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &entity.NotificationPreference{
		ID: "p-1", UserID: "user-1", Type: entity.TypeInfo,
		Email: true, Frequency: entity.FrequencyDaily, Timezone: "UTC",
		CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id, type) DO UPDATE SET`)).
		WithArgs("p-1", "user-1", "info", true, false, false, false, "daily",
			false, nil, nil, "UTC", nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := postgres.NewPreferenceRepo(db).Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* analytics */

func TestAnalyticsRepo_Append(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	samples := []entity.NotificationAnalytics{
		{ID: "a-1", MetricType: entity.MetricDelivery, MetricName: "sent.email", Value: 3, Count: 3, BucketStart: start, BucketEnd: end, CreatedAt: end},
		{ID: "a-2", MetricType: entity.MetricError, MetricName: "failed.sms.transient", Value: 1, Count: 1, BucketStart: start, BucketEnd: end, CreatedAt: end},
	}
	mock.ExpectExec(regexp.QuoteMeta(`($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`)).
		WithArgs(
			"a-1", nil, "delivery", "sent.email", 3.0, 3, start, end, nil, end,
			"a-2", nil, "error", "failed.sms.transient", 1.0, 1, start, end, nil, end,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := postgres.NewAnalyticsRepo(db).Append(context.Background(), samples); err != nil {
		t.Fatalf("Append err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyticsRepo_Append_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	if err := postgres.NewAnalyticsRepo(db).Append(context.Background(), nil); err != nil {
		t.Fatalf("Append err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyticsRepo_ListRange(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(`WHERE metric_type = \$1 AND bucket_start >= \$2 AND bucket_start < \$3`).
		WithArgs("delivery", from, to).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "notification_id", "metric_type", "metric_name", "value", "count",
			"bucket_start", "bucket_end", "metadata", "created_at",
		}).AddRow("a-1", nil, "delivery", "sent.email", 3.0, int64(3), from, from.Add(time.Minute), []byte(`{"channel":"email"}`), from))

	got, err := postgres.NewAnalyticsRepo(db).ListRange(context.Background(), entity.MetricDelivery, from, to)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListRange err=%v len=%d", err, len(got))
	}
	if got[0].NotificationID != nil || got[0].Metadata["channel"] != "email" {
		t.Fatalf("unexpected sample %+v", got[0])
	}
}
