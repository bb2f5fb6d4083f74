// Package preference decides channel eligibility and quiet-hours suppression
// from a user's notification preference.
package preference

import (
	"time"

	"notify-dispatch/internal/domain/entity"
)

const clockLayout = "15:04"

// IsChannelEnabled maps ch to the matching toggle on p.
// Channels without a toggle (webhook, or channels added later) are enabled.
func IsChannelEnabled(p entity.NotificationPreference, ch entity.Channel) bool {
	switch ch {
	case entity.ChannelEmail:
		return p.Email
	case entity.ChannelSMS:
		return p.SMS
	case entity.ChannelPush:
		return p.Push
	case entity.ChannelInApp:
		return p.InApp
	default:
		return true
	}
}

// IsInQuietHours reports whether now falls inside the quiet-hours window of p,
// evaluated on the wall clock of p.Timezone. Both bounds are inclusive. A window
// with start > end wraps past midnight.
func IsInQuietHours(p entity.NotificationPreference, now time.Time) bool {
	if !quietHoursActive(p) {
		return false
	}
	current := now.In(location(p.Timezone)).Format(clockLayout)
	if p.QuietHoursStart <= p.QuietHoursEnd {
		return p.QuietHoursStart <= current && current <= p.QuietHoursEnd
	}
	return current >= p.QuietHoursStart || current <= p.QuietHoursEnd
}

// QuietHoursEnd returns the first instant after now at which the quiet-hours
// window is over, i.e. one minute past the end bound. ok is false when now is
// not inside quiet hours.
func QuietHoursEnd(p entity.NotificationPreference, now time.Time) (until time.Time, ok bool) {
	if !IsInQuietHours(p, now) {
		return time.Time{}, false
	}
	end, err := time.Parse(clockLayout, p.QuietHoursEnd)
	if err != nil {
		return time.Time{}, false
	}

	local := now.In(location(p.Timezone))
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end.Hour(), end.Minute(), 0, 0, local.Location()).
		Add(time.Minute)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, end.Hour(), end.Minute(), 0, 0, local.Location()).
			Add(time.Minute)
	}
	return candidate.UTC(), true
}

// ShouldDefer reports whether a notification of the given priority must wait
// for quiet hours to end. Urgent notifications are never deferred.
func ShouldDefer(p entity.NotificationPreference, priority entity.Priority, now time.Time) (until time.Time, deferred bool) {
	if priority == entity.PriorityUrgent {
		return time.Time{}, false
	}
	return QuietHoursEnd(p, now)
}

func quietHoursActive(p entity.NotificationPreference) bool {
	return p.QuietHoursEnabled && p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}

// location falls back to UTC for empty or unknown zones.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
