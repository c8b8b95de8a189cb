package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// deadLetterListKey is the Redis list holding serialized DeadLetterEntry
// records, pushed with LPUSH so Replay lists the newest entry first.
const deadLetterListKey = "queue:dead_letter"

// DeadLetterEntry is a task that exhausted its retries or failed a
// dependency, persisted for administrator-gated replay.
type DeadLetterEntry struct {
	TaskID   string                 `json:"task_id"`
	Name     string                 `json:"name"`
	Args     map[string]interface{} `json:"args"`
	Cause    string                 `json:"cause"`
	Err      string                 `json:"error"`
	FailedAt time.Time              `json:"failed_at"`
}

// DeadLetterStore persists exhausted tasks. It prefers Redis and falls
// back to one JSON file per entry under dir when Redis is unavailable,
// so a queue outage never silently drops a failed task.
type DeadLetterStore struct {
	redis *redis.Client
	dir   string
	log   *logrus.Logger
}

// NewDeadLetterStore constructs a store. redisClient may be nil to force
// filesystem-only operation.
func NewDeadLetterStore(redisClient *redis.Client, dir string, log *logrus.Logger) *DeadLetterStore {
	return &DeadLetterStore{redis: redisClient, dir: dir, log: log}
}

// Store persists entry, trying Redis first and falling back to a file
// named "{task_id}.json" under dir on any Redis error.
func (d *DeadLetterStore) Store(ctx context.Context, entry DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if d.redis != nil {
		err := d.redis.LPush(ctx, deadLetterListKey, data).Err()
		if err == nil {
			return nil
		}
		d.log.WithError(err).Warn("dead letter store: redis unavailable, using file fallback")
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d.dir, entry.TaskID+".json")
	return os.WriteFile(path, data, 0o644)
}

// Replay returns every persisted entry without removing it; an
// administrator decides which to resubmit. The store has no operation
// that removes entries.
func (d *DeadLetterStore) Replay(ctx context.Context) ([]DeadLetterEntry, error) {
	var entries []DeadLetterEntry

	if d.redis != nil {
		raw, err := d.redis.LRange(ctx, deadLetterListKey, 0, -1).Result()
		if err == nil {
			for _, r := range raw {
				var entry DeadLetterEntry
				if err := json.Unmarshal([]byte(r), &entry); err == nil {
					entries = append(entries, entry)
				}
			}
			return entries, nil
		}
		d.log.WithError(err).Warn("dead letter store: redis unavailable, reading file fallback")
	}

	files, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(d.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry DeadLetterEntry
		if err := json.Unmarshal(data, &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
