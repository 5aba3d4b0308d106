// Package cache provides an optional Redis-backed page cache for archive
// responses. The archive serves immutable historical data and emits no cache
// validators, so entries simply carry a fixed TTL, keyed by the canonical
// request URL. Repeated sweeps over the same time range skip pages already
// served within the TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL is how long a cached page stays valid.
const DefaultTTL = 15 * time.Minute

// Key identifies a cached page: the fully qualified request URL. Query
// parameters are encoded deterministically upstream (url.Values.Encode sorts
// keys), so equal queries produce equal keys.
type Key string

// redisKey namespaces the key in Redis.
func (k Key) redisKey() string {
	return "pullpush:page:" + string(k)
}

// Manager handles page caching with a Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. A non-positive TTL uses DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{redis: redisClient, ttl: ttl}
}

// Get retrieves a cached page body by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := m.redis.Get(ctx, key.redisKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	cacheHits.Inc()
	return data, nil
}

// Set stores a page body under the manager's TTL.
func (m *Manager) Set(ctx context.Context, key Key, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("cache body cannot be empty")
	}

	if err := m.redis.Set(ctx, key.redisKey(), body, m.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	cacheSize.Add(float64(len(body)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.redisKey()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
