package config

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts five-field expressions and descriptors such as
// "@hourly" or "@every 30s".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCronSchedule parses schedule with the parser used by the scheduler.
func ParseCronSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("invalid cron schedule: cannot be empty")
	}
	s, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

// ValidateCronSchedule checks that schedule can be parsed.
func ValidateCronSchedule(schedule string) error {
	_, err := ParseCronSchedule(schedule)
	return err
}

// ValidateTimezone checks that timezone is a loadable IANA name.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return nil
}

// InRange checks lo <= v <= hi. The bounds must be ordered.
func InRange[T cmp.Ordered](v, lo, hi T) error {
	switch {
	case lo > hi:
		return fmt.Errorf("invalid range [%v, %v]", lo, hi)
	case v < lo:
		return fmt.Errorf("%v is below minimum %v", v, lo)
	case v > hi:
		return fmt.Errorf("%v exceeds maximum %v", v, hi)
	}
	return nil
}

// ValidateIntRange and ValidateDuration are InRange for the two kinds of
// setting the workers read.
func ValidateIntRange(value, lo, hi int) error { return InRange(value, lo, hi) }

func ValidateDuration(d, lo, hi time.Duration) error { return InRange(d, lo, hi) }

func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// OneOf returns a validator accepting only the listed values.
func OneOf(allowed ...string) func(string) error {
	return func(v string) error {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("value %q is not one of %v", v, allowed)
		}
		return nil
	}
}
