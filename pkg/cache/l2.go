package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrL2Unavailable is returned by l2Cache operations once the initial
// connection probe has failed; callers fall back to L1-only operation
// rather than retrying Redis on every request.
var ErrL2Unavailable = errors.New("cache: redis tier unavailable")

// l2Cache wraps a go-redis client with the connect-once-and-degrade
// posture the service cache uses: a failed ping at construction disables
// the tier for the process lifetime instead of failing every call.
type l2Cache struct {
	client    *redis.Client
	log       *logrus.Logger
	available bool
}

func newL2Cache(opts *redis.Options, log *logrus.Logger) *l2Cache {
	client := redis.NewClient(opts)

	l2 := &l2Cache{client: client, log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("cache: redis unavailable, continuing with L1 only")
		l2.available = false
		return l2
	}
	l2.available = true
	return l2
}

func (l2 *l2Cache) close() error {
	if l2.client == nil {
		return nil
	}
	return l2.client.Close()
}

func (l2 *l2Cache) get(ctx context.Context, key string) ([]byte, error) {
	if !l2.available {
		return nil, ErrL2Unavailable
	}
	data, err := l2.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (l2 *l2Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if !l2.available {
		return ErrL2Unavailable
	}
	if err := l2.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := l2.client.SAdd(ctx, TagKey(tag), key).Err(); err != nil {
			return err
		}
		// the tag index itself should not outlive its longest-lived member
		// by more than a day; a fixed ceiling keeps orphaned tag sets from
		// accumulating forever when entries expire without invalidation.
		l2.client.Expire(ctx, TagKey(tag), ttl+24*time.Hour)
	}
	return nil
}

func (l2 *l2Cache) delete(ctx context.Context, key string) error {
	if !l2.available {
		return ErrL2Unavailable
	}
	return l2.client.Del(ctx, key).Err()
}

// invalidateByTag deletes every key recorded under tag's reverse index and
// the index itself, returning how many keys were removed.
func (l2 *l2Cache) invalidateByTag(ctx context.Context, tag string) (int, error) {
	if !l2.available {
		return 0, ErrL2Unavailable
	}
	members, err := l2.client.SMembers(ctx, TagKey(tag)).Result()
	if err != nil {
		return 0, err
	}
	if len(members) > 0 {
		if err := l2.client.Del(ctx, members...).Err(); err != nil {
			return 0, err
		}
	}
	l2.client.Del(ctx, TagKey(tag))
	return len(members), nil
}

// invalidatePattern deletes every key matching a glob pattern via SCAN, so
// a large keyspace is swept incrementally rather than with a blocking KEYS.
func (l2 *l2Cache) invalidatePattern(ctx context.Context, pattern string) (int, error) {
	if !l2.available {
		return 0, ErrL2Unavailable
	}
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := l2.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := l2.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
