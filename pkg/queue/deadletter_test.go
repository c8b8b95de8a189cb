package queue_test

import (
	"context"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/queue"
)

var _ = Describe("DeadLetterStore", func() {
	var (
		mr    *miniredis.Miniredis
		dir   string
		log   *logrus.Logger
		store *queue.DeadLetterStore
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		dir, err = os.MkdirTemp("", "dlq")
		Expect(err).NotTo(HaveOccurred())

		log = logrus.New()
		log.SetOutput(GinkgoWriter)

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store = queue.NewDeadLetterStore(client, dir, log)
	})

	AfterEach(func() {
		mr.Close()
		os.RemoveAll(dir)
	})

	It("persists and replays entries via redis", func() {
		entry := queue.DeadLetterEntry{
			TaskID:   "t1",
			Name:     "publish_schedule",
			Cause:    "retries_exhausted",
			Err:      "timeout",
			FailedAt: time.Now(),
		}
		Expect(store.Store(context.Background(), entry)).To(Succeed())

		entries, err := store.Replay(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].TaskID).To(Equal("t1"))
		Expect(entries[0].Cause).To(Equal("retries_exhausted"))
	})

	It("falls back to the filesystem when redis is unavailable", func() {
		unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		fallbackStore := queue.NewDeadLetterStore(unreachable, dir, log)

		entry := queue.DeadLetterEntry{TaskID: "t2", Name: "send_digest", Cause: "dependency_failed"}
		Expect(fallbackStore.Store(context.Background(), entry)).To(Succeed())

		entries, err := fallbackStore.Replay(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].TaskID).To(Equal("t2"))
	})
})
