package cache

import (
	"context"
	"time"
)

// Cached wraps fn with read-through caching: a call first checks the
// cache under a key derived from prefix, operation, and the call's own
// key parts, and only invokes fn on a miss. This is the explicit
// higher-order replacement for an implicit caching decorator: the
// wrapping is a value (a function returned by this call), not magic
// attached to fn's declaration.
func Cached[T any](c *Cache, prefix Prefix, operation string, ttl time.Duration, tags []string, fn func(ctx context.Context, keyParts ...string) (T, error)) func(ctx context.Context, keyParts ...string) (T, error) {
	return func(ctx context.Context, keyParts ...string) (T, error) {
		key := BuildKey(prefix, operation, keyParts...)

		var cached T
		if err := c.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}

		result, err := fn(ctx, keyParts...)
		if err != nil {
			var zero T
			return zero, err
		}

		_ = c.Set(ctx, key, result, ttl, tags...)
		return result, nil
	}
}
