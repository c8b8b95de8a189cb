package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// adapter satisfies domain.NotificationSink by flattening event/payload
// into a Notification and handing it to a Sink. domain.NotificationSink
// has no error return — the core never blocks on or observes delivery
// outcome — so a delivery failure here is logged and dropped, never
// propagated to the caller.
type adapter struct {
	sink Sink
	log  *logrus.Logger
}

// Adapt wraps sink as a domain.NotificationSink.
func Adapt(sink Sink, log *logrus.Logger) domain.NotificationSink {
	return &adapter{sink: sink, log: log}
}

func (a *adapter) Publish(ctx context.Context, event string, payload map[string]interface{}) {
	fields := make(map[string]string, len(payload))
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body strings.Builder
	for _, k := range keys {
		v := fmt.Sprintf("%v", payload[k])
		fields[k] = v
		fmt.Fprintf(&body, "%s: %s\n", k, v)
	}

	n := Notification{
		Event:   event,
		Subject: event,
		Body:    body.String(),
		Fields:  fields,
	}

	if err := a.sink.Publish(ctx, n); err != nil {
		a.log.WithError(err).WithField("event", event).Warn("notification: publish failed")
	}
}
