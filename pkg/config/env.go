// Package config reads process-level settings from the environment. Invalid
// values are logged and replaced by the default.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// fromEnv returns parse(value) for a set variable, and def when it is unset,
// empty or unparseable.
func fromEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("ignoring invalid environment variable",
			slog.String("key", key),
			slog.String("value", raw),
			slog.String("default", fmt.Sprint(def)),
			slog.String("error", err.Error()))
		return def
	}
	return v
}

// GetEnvString returns the variable or def when it is unset or empty.
func GetEnvString(key, def string) string {
	return fromEnv(key, def, func(s string) (string, error) { return s, nil })
}

// GetEnvInt parses the variable as a base-10 integer.
//
//	limit := GetEnvInt("PAGINATION_MAX_LIMIT", 100)
func GetEnvInt(key string, def int) int {
	return fromEnv(key, def, strconv.Atoi)
}

// GetEnvFloat parses the variable as a float64.
func GetEnvFloat(key string, def float64) float64 {
	return fromEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// GetEnvBool accepts the values of strconv.ParseBool.
func GetEnvBool(key string, def bool) bool {
	return fromEnv(key, def, strconv.ParseBool)
}

// GetEnvDuration parses the variable with time.ParseDuration.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	return fromEnv(key, def, time.ParseDuration)
}

// GetEnvStringList splits a comma-separated variable and drops blank items.
// A list with no items yields def.
//
//	GetEnvStringList("ENABLED_CHANNELS", nil) // "email, sms" => [email sms]
func GetEnvStringList(key string, def []string) []string {
	items := fromEnv(key, nil, func(s string) ([]string, error) {
		var out []string
		for item := range strings.SplitSeq(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	})
	if len(items) == 0 {
		return def
	}
	return items
}
