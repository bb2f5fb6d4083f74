package auth

import "strings"

// PublicEndpoints are served without a token. Health and metrics are
// scraped by the orchestrator and Prometheus.
var PublicEndpoints = []string{
	"/health",
	"/metrics",
}

// IsPublicEndpoint matches path exactly, with a trailing slash, or with a
// query string. "/health/detail" and "/healthcheck" are not public.
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range PublicEndpoints {
		if path == endpoint || path == endpoint+"/" || strings.HasPrefix(path, endpoint+"?") {
			return true
		}
	}
	return false
}
