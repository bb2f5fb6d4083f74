package analytics

import (
	"context"
	"fmt"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

// Counts are event totals over a range.
type Counts struct {
	Sent      int64
	Delivered int64
	Failed    int64
	Opened    int64
	Clicked   int64
	Bounced   int64
}

// DeliveryRate is delivered/sent.
func (c Counts) DeliveryRate() float64 { return ratio(c.Delivered, c.Sent) }

// OpenRate is opened/delivered.
func (c Counts) OpenRate() float64 { return ratio(c.Opened, c.Delivered) }

// ClickRate is clicked/opened.
func (c Counts) ClickRate() float64 { return ratio(c.Clicked, c.Opened) }

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c *Counts) add(name string, n int64) {
	switch entity.EventType(name) {
	case entity.EventSent:
		c.Sent += n
	case entity.EventDelivered:
		c.Delivered += n
	case entity.EventFailed:
		c.Failed += n
	case entity.EventOpened:
		c.Opened += n
	case entity.EventClicked:
		c.Clicked += n
	case entity.EventBounced:
		c.Bounced += n
	}
}

// Report summarises [From, To).
type Report struct {
	From      time.Time
	To        time.Time
	Counts    Counts
	ByChannel map[entity.Channel]Counts
	// Errors counts failures by error class.
	Errors map[string]int64
}

// Reporter reads samples back into reports.
type Reporter struct {
	Repo repository.AnalyticsRepository
}

// Report aggregates every sample whose bucket starts in [from, to).
func (r Reporter) Report(ctx context.Context, from, to time.Time) (Report, error) {
	rep := Report{
		From:      from,
		To:        to,
		ByChannel: make(map[entity.Channel]Counts),
		Errors:    make(map[string]int64),
	}
	for _, mt := range []entity.MetricType{entity.MetricDelivery, entity.MetricEngagement, entity.MetricError} {
		samples, err := r.Repo.ListRange(ctx, mt, from, to)
		if err != nil {
			return Report{}, fmt.Errorf("report %s: %w", mt, err)
		}
		for _, s := range samples {
			if mt == entity.MetricError {
				rep.Errors[s.MetricName] += s.Count
				continue
			}
			rep.Counts.add(s.MetricName, s.Count)
			ch, _ := s.Metadata[MetadataChannel].(string)
			if ch == "" {
				continue
			}
			c := rep.ByChannel[entity.Channel(ch)]
			c.add(s.MetricName, s.Count)
			rep.ByChannel[entity.Channel(ch)] = c
		}
	}
	return rep, nil
}
