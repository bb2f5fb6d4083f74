package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/repository"
)

// Store is the subset of redis.Cmdable used by PreferenceCache.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PreferenceCache is a read-through cache in front of a PreferenceRepository.
// Redis failures fall back to the repository; they never fail a dispatch.
type PreferenceCache struct {
	next  repository.PreferenceRepository
	store Store
	ttl   time.Duration
}

var _ repository.PreferenceRepository = (*PreferenceCache)(nil)

func NewPreferenceCache(next repository.PreferenceRepository, store Store, ttl time.Duration) *PreferenceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PreferenceCache{next: next, store: store, ttl: ttl}
}

func preferenceKey(userID string, typ entity.NotificationType) string {
	return fmt.Sprintf("pref:%s:%s", userID, typ)
}

func (c *PreferenceCache) Get(ctx context.Context, userID string, typ entity.NotificationType) (*entity.NotificationPreference, error) {
	key := preferenceKey(userID, typ)

	raw, err := c.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p entity.NotificationPreference
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			metrics.RecordPreferenceCache(metrics.CacheHit)
			return &p, nil
		}
		metrics.RecordPreferenceCache(metrics.CacheError)
		slog.Warn("discarding corrupt cached preference", slog.String("key", key))
	case errors.Is(err, redis.Nil):
		metrics.RecordPreferenceCache(metrics.CacheMiss)
	default:
		metrics.RecordPreferenceCache(metrics.CacheError)
		slog.Warn("preference cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	p, err := c.next.Get(ctx, userID, typ)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(p); jerr == nil {
		if serr := c.store.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			slog.Warn("preference cache write failed", slog.String("key", key), slog.Any("error", serr))
		}
	}
	return p, nil
}

// Upsert writes through and invalidates the cached entry.
func (c *PreferenceCache) Upsert(ctx context.Context, p *entity.NotificationPreference) error {
	if err := c.next.Upsert(ctx, p); err != nil {
		return err
	}
	key := preferenceKey(p.UserID, p.Type)
	if err := c.store.Del(ctx, key).Err(); err != nil {
		slog.Warn("preference cache invalidation failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}
