package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/notification"
)

// FileSink writes each Notification as a JSON file under dir, one file
// per call, named by timestamp and event. Useful for local development
// and for a durable fallback sink when Slack is unreachable.
type FileSink struct {
	dir string
}

// NewFileSink returns a FileSink writing under dir, creating it on
// first use.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Publish(_ context.Context, n notification.Notification) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &notification.RetryableError{Op: "failed to create output directory", Err: err}
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("file sink: marshal notification: %w", err)
	}

	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), n.Event)
	tmp := filepath.Join(s.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &notification.RetryableError{Op: "failed to write temporary file", Err: err}
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmp, final); err != nil {
		return &notification.RetryableError{Op: "failed to finalize notification file", Err: err}
	}
	return nil
}
