package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

type AnalyticsRepo struct{ db DBTX }

func NewAnalyticsRepo(db DBTX) repository.AnalyticsRepository {
	return &AnalyticsRepo{db: db}
}

const analyticsColumnCount = 10

// Append inserts all samples in one statement.
func (repo *AnalyticsRepo) Append(ctx context.Context, samples []entity.NotificationAnalytics) error {
	if len(samples) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
INSERT INTO notification_analytics (
    id, notification_id, metric_type, metric_name, value, count,
    bucket_start, bucket_end, metadata, created_at)
VALUES `)
	args := make([]any, 0, len(samples)*analyticsColumnCount)
	for i, s := range samples {
		meta, err := jsonb(s.Metadata)
		if err != nil {
			return fmt.Errorf("Append: %w", err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 1; c <= analyticsColumnCount; c++ {
			if c > 1 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(i*analyticsColumnCount + c))
		}
		sb.WriteByte(')')
		args = append(args,
			s.ID, s.NotificationID, s.MetricType, s.MetricName, s.Value, s.Count,
			s.BucketStart, s.BucketEnd, meta, s.CreatedAt,
		)
	}

	if _, err := repo.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// ListRange returns samples of metricType whose bucket starts in [from, to).
func (repo *AnalyticsRepo) ListRange(ctx context.Context, metricType entity.MetricType, from, to time.Time) ([]entity.NotificationAnalytics, error) {
	const query = `
SELECT id, notification_id, metric_type, metric_name, value, count,
       bucket_start, bucket_end, metadata, created_at
FROM notification_analytics
WHERE metric_type = $1 AND bucket_start >= $2 AND bucket_start < $3
ORDER BY bucket_start ASC, metric_name ASC`
	rows, err := repo.db.QueryContext(ctx, query, metricType, from, to)
	if err != nil {
		return nil, fmt.Errorf("ListRange: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.NotificationAnalytics, 0, 64)
	for rows.Next() {
		var (
			s    entity.NotificationAnalytics
			meta []byte
		)
		if err := rows.Scan(&s.ID, &s.NotificationID, &s.MetricType, &s.MetricName, &s.Value, &s.Count,
			&s.BucketStart, &s.BucketEnd, &meta, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListRange: Scan: %w", err)
		}
		if err := unjsonb(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("ListRange: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
