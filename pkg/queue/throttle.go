package queue

import (
	"github.com/dutyroster/scheduler-core/pkg/resilience"
)

// ThrottleStrategy decides whether a submission is admitted given the
// queue's current in-flight count and configured capacity.
type ThrottleStrategy interface {
	Admit(inFlight, capacity int, priority Priority) ThrottleDecision
}

// ThrottleDecision is a strategy's verdict: Allow lets the task proceed
// immediately, Queue defers it with an estimated wait, Reject refuses it.
type ThrottleDecision struct {
	Allow         bool
	Queue         bool
	EstimatedWait float64 // multiplier applied to the caller's base wait estimate
	Reason        string
}

// SimpleThrottle rejects any submission once inFlight reaches capacity.
type SimpleThrottle struct{}

func (SimpleThrottle) Admit(inFlight, capacity int, _ Priority) ThrottleDecision {
	if inFlight >= capacity {
		return ThrottleDecision{Reason: "at capacity"}
	}
	return ThrottleDecision{Allow: true}
}

// QueuedThrottle always admits, but marks submissions past capacity for
// queuing with a wait estimate proportional to the overflow.
type QueuedThrottle struct {
	MaxQueueDepth int
}

func (q QueuedThrottle) Admit(inFlight, capacity int, _ Priority) ThrottleDecision {
	if inFlight < capacity {
		return ThrottleDecision{Allow: true}
	}
	overflow := inFlight - capacity
	if q.MaxQueueDepth > 0 && overflow >= q.MaxQueueDepth {
		return ThrottleDecision{Reason: "queue depth exceeded"}
	}
	return ThrottleDecision{Allow: true, Queue: true, EstimatedWait: float64(overflow + 1)}
}

// PriorityThrottle admits up to a per-priority-band fraction of capacity,
// so low-priority work is squeezed out before high-priority work is.
type PriorityThrottle struct {
	// Fraction of capacity available to requests at or above this
	// priority; PriorityCritical should map to 1.0.
	BandFraction map[Priority]float64
}

func (p PriorityThrottle) Admit(inFlight, capacity int, priority Priority) ThrottleDecision {
	fraction, ok := p.BandFraction[priority]
	if !ok {
		fraction = 1.0
	}
	limit := int(float64(capacity) * fraction)
	if inFlight >= limit {
		return ThrottleDecision{Reason: "priority band at capacity"}
	}
	return ThrottleDecision{Allow: true}
}

// AdaptiveThrottle degrades across the resilience subsystem's utilization
// bands: green/yellow admit everything, orange admits everything but
// marks low-priority work for queuing,
// red admits only high/critical, black admits only critical.
type AdaptiveThrottle struct{}

func (AdaptiveThrottle) Admit(inFlight, capacity int, priority Priority) ThrottleDecision {
	report := resilience.ClassifyUtilization(inFlight, capacity)

	switch report.Level {
	case resilience.UtilizationBlack:
		if priority == PriorityCritical {
			return ThrottleDecision{Allow: true}
		}
		return ThrottleDecision{Reason: "utilization black: critical only"}
	case resilience.UtilizationRed:
		if priority >= PriorityHigh {
			return ThrottleDecision{Allow: true}
		}
		return ThrottleDecision{Reason: "utilization red: high priority and above only"}
	case resilience.UtilizationOrange:
		if priority == PriorityLow {
			return ThrottleDecision{Allow: true, Queue: true, EstimatedWait: report.WaitTimeMultiplier}
		}
		return ThrottleDecision{Allow: true, EstimatedWait: report.WaitTimeMultiplier}
	default:
		return ThrottleDecision{Allow: true, EstimatedWait: report.WaitTimeMultiplier}
	}
}
