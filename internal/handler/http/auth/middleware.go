// Package auth authenticates API callers with HS256 bearer tokens and
// authorizes them by the "role" claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"notify-dispatch/internal/handler/http/respond"
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

type ctxKey string

const ctxUser ctxKey = "user"

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// UserFromContext returns the caller stored by Authz.
func UserFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxUser).(Principal)
	return p, ok
}

// WithUser stores p as the authenticated caller.
func WithUser(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxUser, p)
}

// ValidateSecret rejects empty or short signing secrets at startup.
func ValidateSecret(secret string) error {
	if secret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes (got %d)", MinSecretLength, len(secret))
	}
	return nil
}

// Authz requires a valid token on every endpoint except PublicEndpoints and
// checks the role's permission for the method and path.
func Authz(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			p, err := validateJWT(r.Header.Get("Authorization"), secret, start)
			if err != nil {
				recordAuthRequest("unknown", "failure")
				respond.SafeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized: %w", err))
				return
			}
			recordAuthRequest(p.Role, "success")
			recordAuthDuration(p.Role, time.Since(start).Seconds())

			if !checkRolePermission(p.Role, r.Method, r.URL.Path) {
				recordForbiddenAttempt(p.Role, r.Method)
				respond.SafeError(w, http.StatusForbidden, errors.New("forbidden"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), p)))
		})
	}
}

func validateJWT(authz string, secret []byte, now time.Time) (Principal, error) {
	tokenString, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || tokenString == "" {
		return Principal{}, errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, errors.New("token expired")
		}
		return Principal{}, errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, errors.New("invalid sub claim")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Principal{}, errors.New("invalid role claim")
	}
	return Principal{Subject: sub, Role: role}, nil
}
