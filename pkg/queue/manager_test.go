package queue_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/queue"
)

var _ = Describe("Manager", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		mgr    *queue.Manager
		log    *logrus.Logger
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		log = logrus.New()
		log.SetOutput(GinkgoWriter)
		mgr = queue.NewManager(ctx, queue.ManagerConfig{Capacity: 10}, log)
	})

	AfterEach(func() {
		mgr.Stop()
		cancel()
	})

	It("runs a simple task to completion", func() {
		var ran bool
		var mu sync.Mutex
		Expect(mgr.Submit(queue.Task{
			ID:   "t1",
			Name: "noop",
			Run: func() error {
				mu.Lock()
				ran = true
				mu.Unlock()
				return nil
			},
		})).To(Succeed())

		Eventually(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return ran
		}, time.Second).Should(BeTrue())

		Eventually(func() queue.Status {
			rec, ok := mgr.Status("t1")
			if !ok {
				return ""
			}
			return rec.Status
		}, time.Second).Should(Equal(queue.StatusSucceeded))
	})

	It("defers a task until its dependency succeeds", func() {
		var order []string
		var mu sync.Mutex
		record := func(name string) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}

		Expect(mgr.Submit(queue.Task{
			ID:           "child",
			Name:         "child",
			Dependencies: []string{"parent"},
			Run:          func() error { record("child"); return nil },
		})).To(Succeed())

		Expect(mgr.Submit(queue.Task{
			ID:   "parent",
			Name: "parent",
			Run:  func() error { record("parent"); return nil },
		})).To(Succeed())

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), order...)
		}, time.Second).Should(Equal([]string{"parent", "child"}))
	})

	It("dead-letters a dependent when its parent fails", func() {
		Expect(mgr.Submit(queue.Task{
			ID:   "parent-fail",
			Name: "parent-fail",
			Run:  func() error { return errors.New("boom") },
		})).To(Succeed())

		Expect(mgr.Submit(queue.Task{
			ID:           "child-of-failure",
			Name:         "child-of-failure",
			Dependencies: []string{"parent-fail"},
			Run:          func() error { return nil },
		})).To(Succeed())

		Eventually(func() queue.Status {
			rec, ok := mgr.Status("child-of-failure")
			if !ok {
				return ""
			}
			return rec.Status
		}, time.Second).Should(Equal(queue.StatusDeadLettered))
	})

	It("dead-letters a task once its retries are exhausted", func() {
		attempts := 0
		var mu sync.Mutex
		mgr2 := queue.NewManager(ctx, queue.ManagerConfig{
			Capacity: 10,
			Retry:    queue.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		}, log)
		defer mgr2.Stop()

		Expect(mgr2.Submit(queue.Task{
			ID:   "always-fails",
			Name: "always-fails",
			Run: func() error {
				mu.Lock()
				attempts++
				mu.Unlock()
				return errors.New("permanent failure")
			},
		})).To(Succeed())

		Eventually(func() queue.Status {
			rec, ok := mgr2.Status("always-fails")
			if !ok {
				return ""
			}
			return rec.Status
		}, time.Second).Should(Equal(queue.StatusDeadLettered))

		mu.Lock()
		defer mu.Unlock()
		Expect(attempts).To(Equal(2))
	})

	It("rejects submissions once a SimpleThrottle is at capacity", func() {
		mgr3 := queue.NewManager(ctx, queue.ManagerConfig{
			Capacity: 1,
			Throttle: queue.SimpleThrottle{},
		}, log)
		defer mgr3.Stop()

		block := make(chan struct{})
		Expect(mgr3.Submit(queue.Task{
			ID:   "blocker",
			Name: "blocker",
			Run:  func() error { <-block; return nil },
		})).To(Succeed())

		Eventually(func() queue.Status {
			rec, ok := mgr3.Status("blocker")
			if !ok {
				return ""
			}
			return rec.Status
		}, time.Second).Should(Equal(queue.StatusRunning))

		err := mgr3.Submit(queue.Task{ID: "overflow", Name: "overflow", Run: func() error { return nil }})
		Expect(err).To(HaveOccurred())
		close(block)
	})
})
