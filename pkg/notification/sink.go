// Package notification implements the core's one-way publish(event,
// payload) sink: the control loop and mutation engine fire notifications
// about run transitions, published schedules, and detected anomalies
// without ever blocking on or retrying delivery themselves. Retrying
// belongs to the caller's pkg/queue task, not this package.
package notification

import "context"

// Channel names a delivery mechanism a Notification may be routed to.
type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelFile  Channel = "file"
	ChannelNoop  Channel = "noop"
)

// Notification is one event to publish. Body is plain text; sinks that
// support rich formatting (Slack blocks, HTML) build their own
// presentation from Subject/Body/Fields rather than this package
// rendering a template — template rendering is out of scope here.
type Notification struct {
	Event    string
	Subject  string
	Body     string
	Fields   map[string]string
	Channels []Channel
}

// Sink delivers a Notification. Implementations should treat delivery
// failure as retryable unless the failure is permanent (bad
// configuration, malformed payload), in which case they return a
// non-RetryableError so a caller wrapping Publish in a queue.RetryPolicy
// can classify it correctly.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// RetryableError marks a delivery failure as transient: the same
// Notification is expected to succeed on a later attempt.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }
