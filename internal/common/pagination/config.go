// Package pagination parses page/limit query parameters and builds the page
// metadata returned with list responses.
package pagination

import "notify-dispatch/pkg/config"

// Config bounds the page size.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns limit 20, max 100.
func DefaultConfig() Config {
	return Config{DefaultLimit: 20, MaxLimit: 100}
}

// LoadFromEnv reads PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT.
// Out-of-range values fall back to DefaultConfig.
func LoadFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		DefaultLimit: config.GetEnvInt("PAGINATION_DEFAULT_LIMIT", def.DefaultLimit),
		MaxLimit:     config.GetEnvInt("PAGINATION_MAX_LIMIT", def.MaxLimit),
	}
	if cfg.MaxLimit < 1 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultLimit < 1 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(def.DefaultLimit, cfg.MaxLimit)
	}
	return cfg
}
