// Package middleware holds the cross-origin and rate limiting middleware of
// the notification API.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"notify-dispatch/pkg/config"
)

// CORSConfig is the cross-origin policy. Browsers only reach the API from
// inbox front ends; server-to-server callers send no Origin header.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is the preflight cache duration in seconds.
	MaxAge int
}

// LoadCORSConfig reads CORS_ALLOWED_ORIGINS, CORS_ALLOWED_METHODS,
// CORS_ALLOWED_HEADERS and CORS_MAX_AGE. An empty origin list disables CORS.
func LoadCORSConfig() (CORSConfig, error) {
	cfg := CORSConfig{
		AllowedOrigins: config.GetEnvStringList("CORS_ALLOWED_ORIGINS", nil),
		AllowedMethods: config.GetEnvStringList("CORS_ALLOWED_METHODS",
			[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: config.GetEnvStringList("CORS_ALLOWED_HEADERS",
			[]string{"Content-Type", "Authorization", "X-Request-ID"}),
		MaxAge: config.GetEnvInt("CORS_MAX_AGE", 86400),
	}
	for _, o := range cfg.AllowedOrigins {
		if err := validateOrigin(o); err != nil {
			return CORSConfig{}, err
		}
	}
	if cfg.MaxAge < 0 {
		return CORSConfig{}, fmt.Errorf("CORS_MAX_AGE must be non-negative, got %d", cfg.MaxAge)
	}
	return cfg, nil
}

func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must use http or https scheme: %s", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("origin must include a host: %s", origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin must not include path, query or fragment: %s", origin)
	}
	return nil
}

// Enabled reports whether any origin is allowed.
func (c CORSConfig) Enabled() bool { return len(c.AllowedOrigins) > 0 }

// CORS sets the CORS headers for allowed origins and answers preflight
// requests with 204. Requests from other origins pass through without
// CORS headers so the browser blocks the response.
func CORS(cfg CORSConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			if !slices.Contains(cfg.AllowedOrigins, origin) {
				logger.Warn("CORS: origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
