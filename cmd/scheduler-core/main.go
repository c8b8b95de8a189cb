// Command scheduler-core is the process entrypoint: it loads
// configuration, wires persistence, cache, queue, notification, and
// metrics infrastructure around the Candidate Generator, Constraint
// Engine, and Control Loop, then drives one scheduling run to
// completion or resumes an interrupted one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/internal/config"
	"github.com/dutyroster/scheduler-core/pkg/cache"
	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/control"
	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/generator"
	"github.com/dutyroster/scheduler-core/pkg/generator/strategies"
	"github.com/dutyroster/scheduler-core/pkg/metrics"
	"github.com/dutyroster/scheduler-core/pkg/notification"
	"github.com/dutyroster/scheduler-core/pkg/notification/delivery"
	"github.com/dutyroster/scheduler-core/pkg/persistence/postgres"
	"github.com/dutyroster/scheduler-core/pkg/queue"
	"github.com/dutyroster/scheduler-core/pkg/resilience"
	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to YAML configuration")
		scenario    = flag.String("scenario", "default", "scenario name for a new run")
		resumeRunID = flag.String("resume", "", "run ID to resume instead of starting a new run")
		dateStart   = flag.String("date-start", "", "schedule period start, YYYY-MM-DD")
		dateEnd     = flag.String("date-end", "", "schedule period end, YYYY-MM-DD")
		metricsPort = flag.String("metrics-port", "9090", "Prometheus metrics listener port")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "RNG seed for a new run")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler-core: load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(cfg.Persistence.DSN, log)
	if err != nil {
		log.WithError(err).Fatal("connect to record store")
	}
	defer store.Close()

	runStore, err := control.NewRunStore(cfg.Persistence.RunDir)
	if err != nil {
		log.WithError(err).Fatal("initialize run-state store")
	}

	recordCache := cache.New(cache.Config{
		RedisAddr:    os.Getenv("SCHEDULER_REDIS_ADDR"),
		L1Capacity:   cfg.Cache.L1MaxEntries,
		DefaultTTL:   cfg.Cache.L1TTL,
		MaxValueSize: cache.DefaultMaxValueSize,
	}, log)

	dlRedis := redis.NewClient(&redis.Options{Addr: os.Getenv("SCHEDULER_REDIS_ADDR")})
	deadLetters := queue.NewDeadLetterStore(dlRedis, cfg.Persistence.RunDir+"/dead-letter", log)

	qmgr := queue.NewManager(ctx, queue.ManagerConfig{
		Capacity: 100,
		Retry: queue.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxRetries,
			BaseDelay:   cfg.Queue.BackoffBase,
			MaxDelay:    cfg.Queue.BackoffMax,
			Backoff:     queue.BackoffExponential,
			Jitter:      queue.JitterEqual,
		},
		Throttle:   queue.AdaptiveThrottle{},
		DeadLetter: deadLetters,
	}, log)
	defer qmgr.Stop()

	sink := notification.Adapt(resolveNotificationSink(log), log)

	metricsServer := metrics.NewServer(*metricsPort, log)
	metricsServer.StartAsync()
	defer metricsServer.Stop(ctx)

	period, err := parsePeriod(*dateStart, *dateEnd)
	if err != nil {
		log.WithError(err).Fatal("parse schedule period")
	}

	genCtx, constraintsBase, expected, err := loadSchedulingContext(ctx, store, period, recordCache)
	if err != nil {
		log.WithError(err).Fatal("load scheduling context")
	}

	preferredAlgorithms := toAlgorithms(cfg.Generator.Algorithms)
	gen := generator.New(log, preferredAlgorithms, true)

	detector := resilience.NewMetastabilityDetector()
	advisor := resilience.NewMetastabilityAdvisor(detector, 50)

	loop := control.NewLoop(log, runStore, gen, advisor, preferredAlgorithms, genCtx, constraintsBase, expected)

	var (
		final  domain.RunState
		runErr error
	)
	if *resumeRunID != "" {
		final, runErr = loop.Resume(ctx, *resumeRunID)
	} else {
		final, runErr = loop.Start(ctx, *scenario, period.Start, period.End,
			cfg.Run.MaxIterations, cfg.Run.TargetScore, cfg.Run.StagnationLimit, *seed)
	}
	if runErr != nil {
		log.WithError(runErr).Fatal("run failed")
	}

	sink.Publish(ctx, "run.finished", map[string]interface{}{
		"run_id": final.RunID,
		"status": string(final.Status),
		"score":  final.BestScore,
	})

	log.WithFields(logging.NewFields().Component("main").Operation("run").
		Custom("run_id", final.RunID).Custom("status", final.Status).
		Custom("best_score", final.BestScore).ToLogrus()).Info("run complete")

	if err := qmgr.Submit(queue.Task{
		ID:       final.RunID + "-publish",
		Name:     "publish-schedule",
		Priority: queue.PriorityNormal,
		Run: func() error {
			return nil
		},
	}); err != nil {
		log.WithError(err).Warn("submit publish task")
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// resolveNotificationSink picks a delivery.Sink from environment
// configuration: a Slack webhook when configured, otherwise a
// file-backed sink under SCHEDULER_NOTIFICATION_DIR (default
// ./notifications), never requiring an external dependency to run locally.
func resolveNotificationSink(log *logrus.Logger) notification.Sink {
	if webhook := os.Getenv("SCHEDULER_SLACK_WEBHOOK"); webhook != "" {
		return delivery.NewSlackSink(webhook)
	}
	dir := os.Getenv("SCHEDULER_NOTIFICATION_DIR")
	if dir == "" {
		dir = "./notifications"
	}
	return delivery.NewFileSink(dir)
}

type period struct {
	Start time.Time
	End   time.Time
}

func parsePeriod(start, end string) (period, error) {
	if start == "" || end == "" {
		now := time.Now().UTC()
		return period{Start: now, End: now.AddDate(0, 0, 28)}, nil
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return period{}, fmt.Errorf("invalid -date-start: %w", err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return period{}, fmt.Errorf("invalid -date-end: %w", err)
	}
	return period{Start: s, End: e}, nil
}

// loadSchedulingContext reads the persons, blocks, templates, absences,
// and swaps the generator and constraint engine need for one run out of
// the record store, going through the cache for the rarely-changing
// roster and template lookups.
func loadSchedulingContext(ctx context.Context, store *postgres.Store, p period, c *cache.Cache) (strategies.Context, constraints.Input, int, error) {
	persons, err := cachedPersons(ctx, store, c)
	if err != nil {
		return strategies.Context{}, constraints.Input{}, 0, err
	}
	templates, err := store.ListRotationTemplates(ctx)
	if err != nil {
		return strategies.Context{}, constraints.Input{}, 0, err
	}
	blocks, err := store.ListBlocksByDateRange(ctx, p.Start, p.End)
	if err != nil {
		return strategies.Context{}, constraints.Input{}, 0, err
	}

	var residents, faculty []domain.Person
	personByID := make(map[string]domain.Person, len(persons))
	for _, person := range persons {
		personByID[person.ID] = person
		if person.IsResident() {
			residents = append(residents, person)
		} else {
			faculty = append(faculty, person)
		}
	}

	blockByID := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		blockByID[b.ID] = b
	}
	templateByID := make(map[string]domain.RotationTemplate, len(templates))
	for _, t := range templates {
		templateByID[t.ID] = t
	}

	absences, err := store.ListAbsencesByDateRange(ctx, p.Start, p.End)
	if err != nil {
		return strategies.Context{}, constraints.Input{}, 0, err
	}
	swaps, err := store.ListPendingSwaps(ctx)
	if err != nil {
		return strategies.Context{}, constraints.Input{}, 0, err
	}

	genCtx := strategies.Context{
		Residents: residents,
		Faculty:   faculty,
		Blocks:    blocks,
		Templates: templates,
	}

	input := constraints.Input{
		Period:    constraints.Period{Start: p.Start, End: p.End},
		Persons:   personByID,
		Blocks:    blockByID,
		Templates: templateByID,
		Absences:  absences,
		Swaps:     swaps,
		Now:       time.Now().UTC(),
	}

	return genCtx, input, len(blocks), nil
}

// cachedPersons serves the roster through the L1/L2 cache with a short
// TTL: the person roster changes rarely within a single run but often
// enough across runs that an unbounded cache would go stale.
func cachedPersons(ctx context.Context, store *postgres.Store, c *cache.Cache) ([]domain.Person, error) {
	fn := func(ctx context.Context, _ ...string) ([]domain.Person, error) {
		return store.ListPersons(ctx)
	}
	cached := cache.Cached(c, cache.PrefixPersons, "roster", cache.TTLShort, nil, fn)
	return cached(ctx, "all")
}

func toAlgorithms(names []string) []domain.Algorithm {
	out := make([]domain.Algorithm, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Algorithm(n))
	}
	return out
}
