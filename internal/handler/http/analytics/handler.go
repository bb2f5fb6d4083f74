// Package analytics serves delivery and engagement reports.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"notify-dispatch/internal/handler/http/respond"
	analyticsUC "notify-dispatch/internal/usecase/analytics"
)

// MaxRange bounds the span of one report request.
const MaxRange = 31 * 24 * time.Hour

// Reporter builds a report over [from, to).
type Reporter interface {
	Report(ctx context.Context, from, to time.Time) (analyticsUC.Report, error)
}

// Register mounts GET /analytics/report on mux.
func Register(mux *http.ServeMux, rep Reporter) {
	mux.Handle("GET /analytics/report", ReportHandler{Reporter: rep})
}

// CountsDTO carries totals and the derived rates.
type CountsDTO struct {
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	Opened       int64   `json:"opened"`
	Clicked      int64   `json:"clicked"`
	Bounced      int64   `json:"bounced"`
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// ReportDTO is the body of GET /analytics/report.
type ReportDTO struct {
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Totals    CountsDTO            `json:"totals"`
	ByChannel map[string]CountsDTO `json:"by_channel"`
	Errors    map[string]int64     `json:"errors"`
}

func toCountsDTO(c analyticsUC.Counts) CountsDTO {
	return CountsDTO{
		Sent:         c.Sent,
		Delivered:    c.Delivered,
		Failed:       c.Failed,
		Opened:       c.Opened,
		Clicked:      c.Clicked,
		Bounced:      c.Bounced,
		DeliveryRate: c.DeliveryRate(),
		OpenRate:     c.OpenRate(),
		ClickRate:    c.ClickRate(),
	}
}

// ReportHandler reads from and to as RFC 3339 query parameters. Both are
// optional: to defaults to now and from to 24 hours before to.
type ReportHandler struct {
	Reporter Reporter
	Now      func() time.Time
}

func (h ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}

	from, to, err := parseRange(r, now)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	rep, err := h.Reporter.Report(r.Context(), from, to)
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	byChannel := make(map[string]CountsDTO, len(rep.ByChannel))
	for ch, c := range rep.ByChannel {
		byChannel[string(ch)] = toCountsDTO(c)
	}
	respond.JSON(w, http.StatusOK, ReportDTO{
		From:      rep.From,
		To:        rep.To,
		Totals:    toCountsDTO(rep.Counts),
		ByChannel: byChannel,
		Errors:    rep.Errors,
	})
}

func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := now
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be in RFC3339 format")
		}
		to = t.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be in RFC3339 format")
		}
		from = t.UTC()
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	if to.Sub(from) > MaxRange {
		return time.Time{}, time.Time{}, fmt.Errorf("range must be at most %s", MaxRange)
	}
	return from, to, nil
}
