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

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/infra/adapter/persistence/postgres"
)

var deliveryCols = []string{
	"id", "notification_id", "channel", "recipient", "status", "provider_message_id", "error",
	"retry_count", "max_retries", "next_retry_at", "sent_at", "delivered_at", "failed_at",
	"claimed_at", "permanent", "version", "metadata", "created_at", "updated_at",
}

func sampleDelivery() *entity.Delivery {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	retryAt := created.Add(5 * time.Minute)
	return &entity.Delivery{
		ID:             "d-1",
		NotificationID: "n-1",
		Channel:        entity.ChannelSMS,
		Recipient:      "+15551234567",
		Status:         entity.DeliveryFailed,
		Error:          "gateway timeout",
		RetryCount:     1,
		MaxRetries:     3,
		NextRetryAt:    &retryAt,
		FailedAt:       &created,
		Version:        2,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func deliveryRow(d *entity.Delivery) *sqlmock.Rows {
	return sqlmock.NewRows(deliveryCols).AddRow(
		d.ID, d.NotificationID, string(d.Channel), d.Recipient, string(d.Status), d.ProviderMessageID, d.Error,
		d.RetryCount, d.MaxRetries, *d.NextRetryAt, nil, nil, *d.FailedAt,
		nil, d.Permanent, d.Version, nil, d.CreatedAt, d.UpdatedAt,
	)
}

func TestDeliveryRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleDelivery()
	mock.ExpectQuery(`FROM notification_deliveries`).
		WithArgs("d-1").
		WillReturnRows(deliveryRow(want))

	got, err := postgres.NewDeliveryRepo(db).Get(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDeliveryRepo_FindByNotificationAndChannel_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`WHERE notification_id = \$1 AND channel = \$2`).
		WithArgs("n-1", "push").
		WillReturnError(sql.ErrNoRows)

	_, err := postgres.NewDeliveryRepo(db).FindByNotificationAndChannel(context.Background(), "n-1", entity.ChannelPush)
	if !errors.Is(err, entity.ErrDeliveryNotFound) {
		t.Fatalf("err=%v, want ErrDeliveryNotFound", err)
	}
}

func TestDeliveryRepo_FindByProviderMessageID_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	_, err := postgres.NewDeliveryRepo(db).FindByProviderMessageID(context.Background(), "")
	if !errors.Is(err, entity.ErrDeliveryNotFound) {
		t.Fatalf("err=%v, want ErrDeliveryNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeliveryRepo_Create(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		wantErr     error
		wantVersion int64
	}{
		{name: "inserted", affected: 1, wantVersion: 1},
		{name: "already exists", affected: 0, wantErr: entity.ErrConcurrentModification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			d := sampleDelivery()
			d.Version = 0
			mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (notification_id, channel) DO NOTHING`)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := postgres.NewDeliveryRepo(db).Create(context.Background(), d)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create err=%v, want %v", err, tt.wantErr)
			}
			if d.Version != tt.wantVersion {
				t.Fatalf("version=%d, want %d", d.Version, tt.wantVersion)
			}
		})
	}
}

func TestDeliveryRepo_Update(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		exists      *bool
		wantErr     error
		wantVersion int64
	}{
		{name: "version matches", affected: 1, wantVersion: 3},
		{name: "stale version", affected: 0, exists: boolPtr(true), wantErr: entity.ErrConcurrentModification, wantVersion: 2},
		{name: "missing row", affected: 0, exists: boolPtr(false), wantErr: entity.ErrDeliveryNotFound, wantVersion: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			d := sampleDelivery()
			mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND version = $2`)).
				WithArgs(
					d.ID, d.Version, d.Recipient, "failed", "", d.Error,
					d.RetryCount, d.MaxRetries, *d.NextRetryAt, nil,
					nil, *d.FailedAt, nil, false,
					nil, d.UpdatedAt,
				).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.exists != nil {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
					WithArgs(d.ID).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(*tt.exists))
			}

			err := postgres.NewDeliveryRepo(db).Update(context.Background(), d)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update err=%v, want %v", err, tt.wantErr)
			}
			if d.Version != tt.wantVersion {
				t.Fatalf("version=%d, want %d", d.Version, tt.wantVersion)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestDeliveryRepo_ListDueForRetry(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`JOIN notifications n ON n.id = d.notification_id`).
		WithArgs(now, 100).
		WillReturnRows(deliveryRow(sampleDelivery()))

	got, err := postgres.NewDeliveryRepo(db).ListDueForRetry(context.Background(), now, 100)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListDueForRetry err=%v len=%d", err, len(got))
	}
	if got[0].Channel != entity.ChannelSMS {
		t.Fatalf("channel=%s", got[0].Channel)
	}
}

func TestDeliveryRepo_ListStale(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`claimed_at <= \$1`).
		WillReturnRows(sqlmock.NewRows(deliveryCols))

	got, err := postgres.NewDeliveryRepo(db).ListStale(context.Background(), time.Now(), 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("ListStale err=%v len=%d", err, len(got))
	}
}
