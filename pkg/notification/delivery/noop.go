package delivery

import (
	"context"
	"sync"

	"github.com/dutyroster/scheduler-core/pkg/notification"
)

// NoopSink discards every Notification. It records each call for tests
// that only need to assert a publish happened, without standing up a
// real Slack workspace or writable directory.
type NoopSink struct {
	mu        sync.Mutex
	published []notification.Notification
}

// NewNoopSink returns a ready-to-use NoopSink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Publish(_ context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, n)
	return nil
}

// Published returns every Notification handed to Publish so far.
func (s *NoopSink) Published() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Notification, len(s.published))
	copy(out, s.published)
	return out
}
