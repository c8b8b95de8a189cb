package cache_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/cache"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

var _ = Describe("Cache", func() {
	var (
		mr  *miniredis.Miniredis
		c   *cache.Cache
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		c = cache.New(cache.Config{
			RedisAddr:  mr.Addr(),
			L1Capacity: 100,
			DefaultTTL: time.Minute,
		}, discardLogger())
	})

	AfterEach(func() {
		Expect(c.Close()).To(Succeed())
		mr.Close()
	})

	Describe("P8: set/get/invalidate_by_tag", func() {
		It("stores and retrieves a value", func() {
			Expect(c.Set(ctx, "k1", map[string]string{"a": "b"}, 0)).To(Succeed())

			var out map[string]string
			Expect(c.Get(ctx, "k1", &out)).To(Succeed())
			Expect(out).To(Equal(map[string]string{"a": "b"}))
		})

		It("returns ErrCacheMiss for an absent key", func() {
			var out map[string]string
			err := c.Get(ctx, "missing", &out)
			Expect(err).To(Equal(cache.ErrCacheMiss))
		})

		It("removes every key sharing an invalidated tag", func() {
			Expect(c.Set(ctx, "k1", "v1", 0, "person:res-1")).To(Succeed())
			Expect(c.Set(ctx, "k2", "v2", 0, "person:res-1")).To(Succeed())
			Expect(c.Set(ctx, "k3", "v3", 0, "person:res-2")).To(Succeed())

			removed := c.InvalidateTag(ctx, "person:res-1")
			Expect(removed).To(BeNumerically(">=", 2))

			var out string
			Expect(c.Get(ctx, "k1", &out)).To(Equal(cache.ErrCacheMiss))
			Expect(c.Get(ctx, "k2", &out)).To(Equal(cache.ErrCacheMiss))
			Expect(c.Get(ctx, "k3", &out)).To(Succeed())
		})
	})

	Describe("tiering", func() {
		It("repopulates L1 from an L2 hit after an L1 eviction", func() {
			tiny := cache.New(cache.Config{RedisAddr: mr.Addr(), L1Capacity: 1, DefaultTTL: time.Minute}, discardLogger())
			defer tiny.Close()

			Expect(tiny.Set(ctx, "a", "va", 0)).To(Succeed())
			Expect(tiny.Set(ctx, "b", "vb", 0)).To(Succeed()) // evicts "a" from L1

			var out string
			Expect(tiny.Get(ctx, "a", &out)).To(Succeed()) // served from L2
			Expect(out).To(Equal("va"))
		})
	})

	Describe("graceful degradation", func() {
		It("continues serving L1 reads and writes when Redis is unreachable", func() {
			degraded := cache.New(cache.Config{RedisAddr: "127.0.0.1:1", L1Capacity: 10, DefaultTTL: time.Minute}, discardLogger())
			defer degraded.Close()

			Expect(degraded.Set(ctx, "k", "v", 0)).To(Succeed())

			var out string
			Expect(degraded.Get(ctx, "k", &out)).To(Succeed())
			Expect(out).To(Equal("v"))
			Expect(degraded.Stats().L2Available).To(BeFalse())
		})
	})

	Describe("value size limit", func() {
		It("rejects a value larger than MaxValueSize", func() {
			limited := cache.New(cache.Config{RedisAddr: mr.Addr(), L1Capacity: 10, MaxValueSize: 16}, discardLogger())
			defer limited.Close()

			err := limited.Set(ctx, "big", "this value is definitely longer than sixteen bytes", 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("exceeds maximum size"))
		})
	})

	Describe("TTL expiry", func() {
		It("reports a miss once both tiers' TTL has elapsed", func() {
			Expect(c.Set(ctx, "short", "v", 20*time.Millisecond)).To(Succeed())
			mr.FastForward(time.Minute)
			time.Sleep(30 * time.Millisecond)

			var out string
			Expect(c.Get(ctx, "short", &out)).To(Equal(cache.ErrCacheMiss))
		})
	})

	Describe("Stats", func() {
		It("tracks hits and misses", func() {
			c.ResetStats()
			var out string
			_ = c.Get(ctx, "absent", &out)
			Expect(c.Set(ctx, "present", "v", 0)).To(Succeed())
			_ = c.Get(ctx, "present", &out)

			stats := c.Stats()
			Expect(stats.Hits).To(Equal(int64(1)))
			Expect(stats.Misses).To(Equal(int64(1)))
			Expect(stats.HitRate()).To(BeNumerically("~", 0.5, 0.001))
		})
	})
})

var _ = Describe("Cached combinator", func() {
	var (
		mr  *miniredis.Miniredis
		c   *cache.Cache
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		c = cache.New(cache.Config{RedisAddr: mr.Addr(), L1Capacity: 10, DefaultTTL: time.Minute}, discardLogger())
	})

	AfterEach(func() {
		c.Close()
		mr.Close()
	})

	It("invokes the wrapped function only once per key", func() {
		calls := 0
		fn := func(ctx context.Context, keyParts ...string) (string, error) {
			calls++
			return "computed:" + keyParts[0], nil
		}
		cached := cache.Cached(c, cache.PrefixWorkload, "summary", time.Minute, nil, fn)

		first, err := cached(ctx, "res-1")
		Expect(err).NotTo(HaveOccurred())
		second, err := cached(ctx, "res-1")
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(second))
		Expect(calls).To(Equal(1))
	})
})
