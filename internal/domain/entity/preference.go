package entity

import (
	"fmt"
	"regexp"
	"time"
)

// Frequency controls digest batching. Only immediate delivery is performed by
// the dispatch core; the other values are stored for downstream digest jobs.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// IsValid reports whether the frequency is one of the known values.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// NotificationPreference is one row per (user, notification type).
//
// Quiet hours only take effect when enabled and both bounds are present.
// Bounds are zero-padded "HH:mm" strings interpreted in Timezone.
type NotificationPreference struct {
	ID                string
	UserID            string
	Type              NotificationType
	Email             bool
	SMS               bool
	Push              bool
	InApp             bool
	Frequency         Frequency
	QuietHoursEnabled bool
	QuietHoursStart   string
	QuietHoursEnd     string
	Timezone          string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultPreference returns the preference applied when a user has not saved one:
// every channel enabled, immediate frequency, no quiet hours, UTC.
func DefaultPreference(userID string, typ NotificationType) NotificationPreference {
	return NotificationPreference{
		UserID:    userID,
		Type:      typ,
		Email:     true,
		SMS:       true,
		Push:      true,
		InApp:     true,
		Frequency: FrequencyImmediate,
		Timezone:  "UTC",
	}
}

// Validate checks the clock format of the quiet-hours bounds and the timezone.
func (p NotificationPreference) Validate() error {
	if p.UserID == "" {
		return &ValidationError{Field: "userId", Message: "user id is required"}
	}
	if !p.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", p.Type)}
	}
	if p.Frequency != "" && !p.Frequency.IsValid() {
		return &ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", p.Frequency)}
	}
	if p.QuietHoursStart != "" && !clockPattern.MatchString(p.QuietHoursStart) {
		return &ValidationError{Field: "quietHoursStart", Message: "must be HH:mm"}
	}
	if p.QuietHoursEnd != "" && !clockPattern.MatchString(p.QuietHoursEnd) {
		return &ValidationError{Field: "quietHoursEnd", Message: "must be HH:mm"}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return &ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", p.Timezone)}
		}
	}
	return nil
}

// Replace returns a new snapshot carrying next's user-editable fields.
func (p NotificationPreference) Replace(next NotificationPreference, now time.Time) (NotificationPreference, error) {
	out := next
	out.ID = p.ID
	out.UserID = p.UserID
	out.Type = p.Type
	out.Metadata = cloneMap(next.Metadata)
	out.CreatedAt = p.CreatedAt
	out.UpdatedAt = nextUpdatedAt(p.UpdatedAt, now)
	if err := out.Validate(); err != nil {
		return p, err
	}
	return out, nil
}
