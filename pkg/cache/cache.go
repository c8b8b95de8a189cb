// Package cache implements the two-tier read-side cache: an in-process
// bounded L1 and an optional Redis-backed L2, with tag-based and
// pattern-based invalidation shared across both tiers. A component that
// wants acceleration for an expensive, idempotent read wraps it with
// Cached instead of hand-rolling a memo table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

// ErrCacheMiss is returned by Get (and surfaced through Cached) when a key
// is absent from both tiers.
var ErrCacheMiss = errors.New("cache: miss")

// DefaultMaxValueSize caps a single cached value so one oversized payload
// cannot exhaust L1's memory or blow past Redis's value limits.
const DefaultMaxValueSize = 5 * 1024 * 1024

// Standard TTLs for the common stability classes of cached data.
const (
	TTLShort    = 5 * time.Minute
	TTLMedium   = 30 * time.Minute
	TTLLong     = time.Hour
	TTLExtended = 4 * time.Hour
	TTLDay      = 24 * time.Hour
	TTLWeek     = 7 * 24 * time.Hour
)

// Config controls both tiers of a Cache.
type Config struct {
	RedisAddr    string
	RedisDB      int
	L1Capacity   int
	DefaultTTL   time.Duration
	MaxValueSize int
}

// Stats is a snapshot of cache performance counters, reset-able via ResetStats.
type Stats struct {
	Hits         int64
	Misses       int64
	Errors       int64
	L2Available  bool
	ApproxL1Size int
}

// HitRate returns hits/(hits+misses), or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache composes the in-process L1 tier with the optional Redis L2 tier.
// Reads check L1 first, then L2; an L2 hit repopulates L1. Writes go to
// both tiers with the same TTL. A Redis outage degrades L2 operations to
// ErrL2Unavailable without ever failing a Get/Set against L1.
type Cache struct {
	l1         *l1Cache
	l2         *l2Cache
	defaultTTL time.Duration
	maxValue   int
	log        *logrus.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
	errs   int64
}

// New constructs a Cache. Redis connectivity is probed once; failure logs
// a warning and leaves the cache running in L1-only mode rather than
// returning an error, matching the service cache's graceful degradation.
func New(cfg Config, log *logrus.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = TTLLong
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = DefaultMaxValueSize
	}

	c := &Cache{
		l1:         newL1Cache(cfg.L1Capacity),
		defaultTTL: cfg.DefaultTTL,
		maxValue:   cfg.MaxValueSize,
		log:        log,
	}
	if cfg.RedisAddr != "" {
		c.l2 = newL2Cache(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, log)
	}
	return c
}

// Close releases the Redis connection, if any.
func (c *Cache) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.close()
}

// Get returns the decoded value for key, or ErrCacheMiss if absent from
// both tiers.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) error {
	if data, ok := c.l1.get(key); ok {
		c.recordHit()
		return json.Unmarshal(data, out)
	}

	if c.l2 != nil {
		data, err := c.l2.get(ctx, key)
		switch {
		case err == nil:
			c.recordHit()
			c.l1.set(key, data, c.defaultTTL, nil)
			return json.Unmarshal(data, out)
		case errors.Is(err, ErrCacheMiss):
			// fall through to recordMiss below
		case errors.Is(err, ErrL2Unavailable):
			// degrade silently; L1 already missed.
		default:
			c.recordError()
			c.log.WithFields(logging.NewFields().Component("cache").Operation("get").Error(err).ToLogrus()).
				Debug("cache: l2 get failed")
		}
	}

	c.recordMiss()
	return ErrCacheMiss
}

// Set stores value under key in both tiers with ttl (0 uses the configured
// default) and records it under every tag for later InvalidateTag calls.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value for %q: %w", key, err)
	}
	if len(data) > c.maxValue {
		return fmt.Errorf("cache: value for %q (%d bytes) exceeds maximum size %d bytes", key, len(data), c.maxValue)
	}

	c.l1.set(key, data, ttl, tags)

	if c.l2 != nil {
		if err := c.l2.set(ctx, key, data, ttl, tags); err != nil && !errors.Is(err, ErrL2Unavailable) {
			c.recordError()
			c.log.WithFields(logging.NewFields().Component("cache").Operation("set").Error(err).ToLogrus()).
				Debug("cache: l2 set failed")
		}
	}
	return nil
}

// Delete removes key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.l1.delete(key)
	if c.l2 != nil {
		if err := c.l2.delete(ctx, key); err != nil && !errors.Is(err, ErrL2Unavailable) {
			return err
		}
	}
	return nil
}

// InvalidateTag removes every entry recorded under tag from both tiers and
// returns the total number removed.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) int {
	count := c.l1.deleteByTag(tag)
	if c.l2 != nil {
		if n, err := c.l2.invalidateByTag(ctx, tag); err == nil {
			count += n
		} else if !errors.Is(err, ErrL2Unavailable) {
			c.recordError()
		}
	}
	return count
}

// InvalidatePrefix removes every L2 entry whose key starts with
// string(prefix)+":" — L1 has no pattern index, so callers relying on
// prefix invalidation for L1-held entries should prefer tags instead.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix Prefix) (int, error) {
	if c.l2 == nil {
		return 0, ErrL2Unavailable
	}
	return c.l2.invalidatePattern(ctx, string(prefix)+":*")
}

// Stats returns a snapshot of hit/miss/error counters and tier health.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		Errors:       c.errs,
		L2Available:  c.l2 != nil && c.l2.available,
		ApproxL1Size: c.l1.len(),
	}
}

// ResetStats zeroes the hit/miss/error counters.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.errs = 0, 0, 0
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func (c *Cache) recordError() {
	c.mu.Lock()
	c.errs++
	c.mu.Unlock()
}
