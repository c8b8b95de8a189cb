package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

// ManagerConfig controls a Manager's capacity and dependencies.
type ManagerConfig struct {
	Capacity int // total in-flight tasks across all priority queues
	Retry    RetryPolicy
	Throttle ThrottleStrategy
	DeadLetter *DeadLetterStore
}

// Manager routes submitted tasks to one of four priority queues,
// defers tasks with unmet dependencies until their parents succeed, and
// moves exhausted-retry or dependency-failed tasks to the dead letter
// store. One Manager corresponds to the original's QueueManager plus its
// Celery-backed priority routing and chord-based dependency wait,
// reworked onto Go channels and goroutines per this module's concurrency
// model.
type Manager struct {
	cfg   ManagerConfig
	queues map[Priority]chan Task
	log   *logrus.Logger

	mu       sync.Mutex
	inFlight int
	records  map[string]*Record
	pending  map[string]pendingTask // tasks waiting on dependencies

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingTask struct {
	task    Task
	waiting map[string]bool // dependency IDs not yet resolved
}

// NewManager constructs a Manager and starts its dispatch loop bound to
// ctx; cancelling ctx (or calling Stop) drains in-flight work and halts
// dispatch.
func NewManager(ctx context.Context, cfg ManagerConfig, log *logrus.Logger) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.Throttle == nil {
		cfg.Throttle = SimpleThrottle{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg: cfg,
		queues: map[Priority]chan Task{
			PriorityLow:      make(chan Task, cfg.Capacity),
			PriorityNormal:   make(chan Task, cfg.Capacity),
			PriorityHigh:     make(chan Task, cfg.Capacity),
			PriorityCritical: make(chan Task, cfg.Capacity),
		},
		log:     log,
		records: make(map[string]*Record),
		pending: make(map[string]pendingTask),
		cancel:  cancel,
	}

	m.wg.Add(1)
	go m.dispatchLoop(runCtx)
	return m
}

// Stop halts the dispatch loop and waits for the current task, if any,
// to finish.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Submit enqueues task, honoring its Priority, Countdown/ETA, and
// Dependencies. A throttle rejection returns an error without enqueuing
// anything. A task whose dependencies have not all reached
// StatusSucceeded is held in pending and released as each dependency
// resolves; any dependency failure sends the dependent straight to the
// dead letter store with cause "dependency_failed".
func (m *Manager) Submit(task Task) error {
	m.mu.Lock()
	decision := m.cfg.Throttle.Admit(m.inFlight, m.cfg.Capacity, task.Priority)
	if !decision.Allow {
		m.mu.Unlock()
		return fmt.Errorf("queue: submission rejected: %s", decision.Reason)
	}

	unmet := make(map[string]bool)
	for _, dep := range task.Dependencies {
		rec, ok := m.records[dep]
		if !ok || rec.Status == StatusPending || rec.Status == StatusRunning {
			unmet[dep] = true
			continue
		}
		if rec.Status == StatusFailed || rec.Status == StatusDeadLettered {
			m.mu.Unlock()
			m.deadLetter(task, "dependency_failed", fmt.Errorf("dependency %s did not succeed", dep))
			return nil
		}
	}
	if len(unmet) > 0 {
		m.pending[task.ID] = pendingTask{task: task, waiting: unmet}
		m.mu.Unlock()
		return nil
	}
	m.inFlight++
	m.mu.Unlock()

	m.enqueue(task)
	return nil
}

func (m *Manager) enqueue(task Task) {
	select {
	case m.queues[task.Priority] <- task:
	default:
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		m.deadLetter(task, "queue_full", fmt.Errorf("priority queue %s is full", task.Priority))
	}
}

// dispatchLoop drains the priority queues highest-first, waiting for a
// task's readiness time, then runs it under the configured retry policy.
func (m *Manager) dispatchLoop(ctx context.Context) {
	defer m.wg.Done()
	submittedAt := time.Now()

	for {
		task, ok := m.nextReady(ctx)
		if !ok {
			return
		}

		wait := time.Until(task.readyAt(submittedAt))
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		m.run(ctx, task)
	}
}

// nextReady blocks until a task is available on the highest-priority
// non-empty queue, or ctx is done.
func (m *Manager) nextReady(ctx context.Context) (Task, bool) {
	order := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
	for {
		for _, p := range order {
			select {
			case t := <-m.queues[p]:
				return t, true
			default:
			}
		}
		select {
		case <-ctx.Done():
			return Task{}, false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *Manager) run(ctx context.Context, task Task) {
	start := time.Now()
	m.setRecord(task.ID, &Record{Task: task, Status: StatusRunning, StartedAt: start})

	attempts := 0
	policy := m.cfg.Retry
	wrapped := func() error {
		attempts++
		return task.Run()
	}

	var err error
	if policy.MaxAttempts > 0 {
		err = policy.Run(ctx, wrapped)
	} else {
		err = wrapped()
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	if err != nil {
		m.setRecord(task.ID, &Record{Task: task, Status: StatusFailed, Err: err, Attempts: attempts, StartedAt: start, EndedAt: time.Now()})
		m.deadLetter(task, "retries_exhausted", err)
		m.releaseDependents(task.ID)
		return
	}

	m.setRecord(task.ID, &Record{Task: task, Status: StatusSucceeded, Attempts: attempts, StartedAt: start, EndedAt: time.Now()})
	m.releaseDependents(task.ID)
}

func (m *Manager) setRecord(id string, rec *Record) {
	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()
}

// releaseDependents resolves id in every pending task's waiting set and
// enqueues or dead-letters those that are now fully resolved.
func (m *Manager) releaseDependents(id string) {
	m.mu.Lock()
	rec := m.records[id]
	var ready []Task
	var failedDeps []Task
	for depID, pt := range m.pending {
		if !pt.waiting[id] {
			continue
		}
		delete(pt.waiting, id)
		if rec.Status == StatusFailed || rec.Status == StatusDeadLettered {
			delete(m.pending, depID)
			failedDeps = append(failedDeps, pt.task)
			continue
		}
		if len(pt.waiting) == 0 {
			delete(m.pending, depID)
			m.inFlight++
			ready = append(ready, pt.task)
		}
	}
	m.mu.Unlock()

	for _, t := range failedDeps {
		m.deadLetter(t, "dependency_failed", fmt.Errorf("dependency %s did not succeed", id))
	}
	for _, t := range ready {
		m.enqueue(t)
	}
}

func (m *Manager) deadLetter(task Task, cause string, err error) {
	m.setRecord(task.ID, &Record{Task: task, Status: StatusDeadLettered, Err: err, EndedAt: time.Now()})
	m.log.WithFields(logging.NewFields().Component("queue").Operation("dead_letter").Error(err).ToLogrus()).
		Warnf("task %s sent to dead letter queue: %s", task.ID, cause)

	if m.cfg.DeadLetter == nil {
		return
	}
	entry := DeadLetterEntry{
		TaskID:   task.ID,
		Name:     task.Name,
		Args:     task.Args,
		Cause:    cause,
		Err:      err.Error(),
		FailedAt: time.Now(),
	}
	if storeErr := m.cfg.DeadLetter.Store(context.Background(), entry); storeErr != nil {
		m.log.WithError(storeErr).Error("queue: failed to persist dead letter entry")
	}
}

// Status returns the current record for a task ID, if known.
func (m *Manager) Status(taskID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[taskID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
