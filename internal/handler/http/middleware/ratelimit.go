package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"notify-dispatch/internal/handler/http/auth"
	"notify-dispatch/internal/handler/http/respond"
	"notify-dispatch/pkg/config"
)

var rateLimitRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_api_rate_limit_rejected_total",
		Help: "Requests rejected by the per-caller rate limiter",
	},
	[]string{"key_type"}, // subject | ip
)

// RateLimitConfig sizes the per-caller token buckets.
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerSecond is the sustained rate per caller.
	RequestsPerSecond float64
	Burst             int
	// IdleTTL evicts buckets of callers that have been quiet this long.
	IdleTTL time.Duration
}

// LoadRateLimitConfig reads RATE_LIMIT_ENABLED, RATE_LIMIT_RPS,
// RATE_LIMIT_BURST and RATE_LIMIT_IDLE_TTL.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           config.GetEnvBool("RATE_LIMIT_ENABLED", true),
		RequestsPerSecond: config.GetEnvFloat("RATE_LIMIT_RPS", 50),
		Burst:             config.GetEnvInt("RATE_LIMIT_BURST", 100),
		IdleTTL:           config.GetEnvDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per authenticated subject, or per client
// IP for anonymous requests.
type RateLimiter struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter creates a limiter. now may be nil.
func NewRateLimiter(cfg RateLimitConfig, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{cfg: cfg, now: now, buckets: make(map[string]*bucket), lastSweep: now()}
}

// Middleware rejects callers over their rate with 429 and a Retry-After
// header. It must run after auth.Authz so the subject is known.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !l.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, keyType := callerKey(r)
		ok, retryAfter := l.allow(key)
		if !ok {
			rateLimitRejected.WithLabelValues(keyType).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			respond.SafeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.IdleTTL {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked callers.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func callerKey(r *http.Request) (string, string) {
	if p, ok := auth.UserFromContext(r.Context()); ok {
		return "sub:" + p.Subject, "subject"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host, "ip"
}
