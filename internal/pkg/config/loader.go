// Package config loads worker settings from the environment with validation
// and fail-open fallback: an invalid value never stops the process, it is
// replaced by the default and reported as a warning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Result is one loaded value. Warning is set when FallbackApplied is true.
type Result[T any] struct {
	Value           T
	Warning         string
	FallbackApplied bool
}

// Load reads key, parses it and validates it. An unset or empty variable
// yields def without a warning.
func Load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[T]{Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Value:           def,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}
	return Result[T]{Value: v}
}

func LoadString(key, def string, validate func(string) error) Result[string] {
	return Load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

func LoadDuration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return Load(key, def, time.ParseDuration, validate)
}

func LoadInt(key string, def int, validate func(int) error) Result[int] {
	return Load(key, def, strconv.Atoi, validate)
}

func LoadBool(key string, def bool) Result[bool] {
	return Load(key, def, strconv.ParseBool, nil)
}
