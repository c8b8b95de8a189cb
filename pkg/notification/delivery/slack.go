package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/dutyroster/scheduler-core/pkg/notification"
	"github.com/dutyroster/scheduler-core/pkg/notification/sanitization"
)

// SlackSink posts notifications to an incoming webhook URL. It never
// blocks the caller waiting for delivery to complete beyond the single
// HTTP round trip; retrying a failed post is the caller's queue's job.
type SlackSink struct {
	webhookURL string
	sanitizer  *sanitization.Sanitizer
}

// NewSlackSink returns a SlackSink posting to webhookURL.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL, sanitizer: sanitization.NewSanitizer()}
}

func (s *SlackSink) Publish(ctx context.Context, n notification.Notification) error {
	body, err := s.sanitizer.SanitizeWithFallback(n.Body)
	if err != nil {
		body = s.sanitizer.SafeFallback(n.Body)
	}

	var fields []string
	for k, v := range n.Fields {
		fields = append(fields, fmt.Sprintf("*%s*: %s", k, v))
	}

	text := fmt.Sprintf("*%s*\n%s", n.Subject, body)
	if len(fields) > 0 {
		text += "\n" + strings.Join(fields, " · ")
	}

	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return &notification.RetryableError{Op: "slack webhook post", Err: err}
	}
	return nil
}
