package repository

import (
	"context"
	"time"

	"notify-dispatch/internal/domain/entity"
)

// AnalyticsRepository is append-only.
type AnalyticsRepository interface {
	Append(ctx context.Context, samples []entity.NotificationAnalytics) error
	ListRange(ctx context.Context, metricType entity.MetricType, from, to time.Time) ([]entity.NotificationAnalytics, error)
}
