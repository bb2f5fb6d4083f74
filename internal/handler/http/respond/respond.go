// Package respond writes JSON responses and maps errors to status codes
// without leaking internal details to clients.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

const hiddenMessage = "internal server error"

// JSON writes v with the given status code. A nil v writes no body.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", slog.Int("status_code", code), slog.Any("error", err))
	}
}

// Error writes err.Error() as the error message.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, ErrorBody{Error: err.Error()})
}

// publicMarkers are substrings of messages produced by request validation and
// the domain layer, which clients are allowed to see.
var publicMarkers = []string{
	"required", "invalid", "not found", "already", "must be", "cannot be",
	"too long", "too short", "unauthorized", "forbidden", "not dispatchable",
	"limit exceeded",
}

func isPublic(code int, msg string) bool {
	if code >= http.StatusInternalServerError {
		return false
	}
	msg = strings.ToLower(msg)
	for _, m := range publicMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// SafeError writes err when its message is safe for clients. Otherwise the
// client gets a generic message and the sanitized error is logged.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	if msg := err.Error(); isPublic(code, msg) {
		JSON(w, code, ErrorBody{Error: msg})
		return
	}
	slog.Default().Error("request failed",
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, ErrorBody{Error: hiddenMessage})
}
