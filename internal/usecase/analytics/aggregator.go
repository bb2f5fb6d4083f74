// Package analytics aggregates delivery and engagement events into hourly,
// append-only metric samples and computes delivery reports from them.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

// BucketSize is the aggregation window of a sample.
const BucketSize = time.Hour

// MetadataChannel is the sample metadata key holding the channel.
const MetadataChannel = "channel"

type bucketKey struct {
	start      time.Time
	metricType entity.MetricType
	name       string
	channel    entity.Channel
}

// Aggregator receives events without blocking the dispatcher and periodically
// flushes per-hour counters as analytics samples.
type Aggregator struct {
	repo   repository.AnalyticsRepository
	events chan entity.DeliveryEvent
	now    func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]int64
}

// NewAggregator creates an aggregator with a buffer of bufferSize events.
func NewAggregator(repo repository.AnalyticsRepository, bufferSize int, now func() time.Time) *Aggregator {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Aggregator{
		repo:    repo,
		events:  make(chan entity.DeliveryEvent, bufferSize),
		now:     now,
		buckets: make(map[bucketKey]int64),
	}
}

// Record enqueues ev. When the buffer is full the event is dropped and counted.
func (a *Aggregator) Record(ev entity.DeliveryEvent) {
	select {
	case a.events <- ev:
	default:
		eventsDropped.Inc()
	}
}

// Run consumes events until ctx is done, then drains the buffer.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case ev := <-a.events:
			a.add(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.events:
					a.add(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Aggregator) add(ev entity.DeliveryEvent) {
	if !ev.Type.IsValid() {
		return
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = a.now()
	}
	start := at.UTC().Truncate(BucketSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.buckets[bucketKey{start: start, metricType: metricTypeOf(ev.Type), name: string(ev.Type), channel: ev.Channel}]++
	if ev.ErrorClass != "" {
		a.buckets[bucketKey{start: start, metricType: entity.MetricError, name: ev.ErrorClass, channel: ev.Channel}]++
	}
	eventsAggregated.WithLabelValues(string(ev.Type)).Inc()
}

func metricTypeOf(t entity.EventType) entity.MetricType {
	switch t {
	case entity.EventOpened, entity.EventClicked, entity.EventBounced:
		return entity.MetricEngagement
	default:
		return entity.MetricDelivery
	}
}

// Flush writes the counters gathered since the last flush as samples and
// resets them. On failure the counters are merged back for the next flush.
func (a *Aggregator) Flush(ctx context.Context) (int, error) {
	a.mu.Lock()
	pending := a.buckets
	a.buckets = make(map[bucketKey]int64)
	a.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	created := a.now()
	samples := make([]entity.NotificationAnalytics, 0, len(pending))
	for k, count := range pending {
		samples = append(samples, entity.NotificationAnalytics{
			ID:          uuid.NewString(),
			MetricType:  k.metricType,
			MetricName:  k.name,
			Value:       float64(count),
			Count:       count,
			BucketStart: k.start,
			BucketEnd:   k.start.Add(BucketSize),
			Metadata:    map[string]any{MetadataChannel: string(k.channel)},
			CreatedAt:   created,
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		if !samples[i].BucketStart.Equal(samples[j].BucketStart) {
			return samples[i].BucketStart.Before(samples[j].BucketStart)
		}
		if samples[i].MetricType != samples[j].MetricType {
			return samples[i].MetricType < samples[j].MetricType
		}
		return samples[i].MetricName < samples[j].MetricName
	})

	if err := a.repo.Append(ctx, samples); err != nil {
		a.mu.Lock()
		for k, count := range pending {
			a.buckets[k] += count
		}
		a.mu.Unlock()
		return 0, fmt.Errorf("flush analytics: %w", err)
	}

	samplesFlushed.Add(float64(len(samples)))
	slog.Debug("analytics flushed", slog.Int("samples", len(samples)))
	return len(samples), nil
}
