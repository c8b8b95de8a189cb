package resilience

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	"github.com/dutyroster/scheduler-core/pkg/shared/logging"
)

// FallbackCatalogue holds precomputed FallbackSchedules, one per scenario,
// loaded from "{scenario}.json" files in a directory and kept current via
// an fsnotify watch so a catalogue edited during a calm period is live
// before the next crisis, with no restart required. Activation is O(1):
// a map lookup plus an atomic flag store, no generation on the hot path.
type FallbackCatalogue struct {
	mu        sync.RWMutex
	schedules map[domain.FallbackScenario]domain.FallbackSchedule
	active    map[domain.FallbackScenario]*atomic.Bool
	log       *logrus.Logger
	watcher   *fsnotify.Watcher
	dir       string
}

// NewFallbackCatalogue returns an empty catalogue; call Load to populate it
// from disk and Watch to keep it current.
func NewFallbackCatalogue(log *logrus.Logger) *FallbackCatalogue {
	return &FallbackCatalogue{
		schedules: make(map[domain.FallbackScenario]domain.FallbackSchedule),
		active:    make(map[domain.FallbackScenario]*atomic.Bool),
		log:       log,
	}
}

// Load reads every "*.json" file in dir into the catalogue. A file that
// fails to parse is skipped with a logged warning rather than aborting the
// whole load.
func (c *FallbackCatalogue) Load(dir string) error {
	c.dir = dir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read fallback catalogue directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := c.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			c.logWarn("load_fallback", err)
		}
	}
	return nil
}

func (c *FallbackCatalogue) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var schedule domain.FallbackSchedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules[schedule.Scenario] = schedule
	if _, ok := c.active[schedule.Scenario]; !ok {
		c.active[schedule.Scenario] = &atomic.Bool{}
	}
	return nil
}

// Watch starts an fsnotify watch on the catalogue directory; any write or
// create of a "*.json" file reloads that scenario. Close stops the watch.
func (c *FallbackCatalogue) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fallback catalogue watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch fallback catalogue directory: %w", err)
	}
	c.watcher = watcher
	go c.watchLoop()
	return nil
}

func (c *FallbackCatalogue) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Ext(event.Name) != ".json" {
				continue
			}
			if err := c.loadFile(event.Name); err != nil {
				c.logWarn("reload_fallback", err)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logWarn("watch_fallback", err)
		}
	}
}

// Close stops the fsnotify watch, if one was started.
func (c *FallbackCatalogue) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// Activate flips a scenario's active flag and bumps its activation count.
// Activating a fallback outside its ValidFrom/ValidUntil window logs a
// warning but still succeeds, per spec.md §4.5 ("advisory" validity).
func (c *FallbackCatalogue) Activate(scenario domain.FallbackScenario, now time.Time) (domain.FallbackSchedule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	schedule, ok := c.schedules[scenario]
	if !ok {
		return domain.FallbackSchedule{}, fmt.Errorf("no fallback schedule registered for scenario %q", scenario)
	}
	if now.Before(schedule.ValidFrom) || now.After(schedule.ValidUntil) {
		c.logWarn("activate_fallback", fmt.Errorf("scenario %q may be stale (valid %s to %s)", scenario, schedule.ValidFrom, schedule.ValidUntil))
	}

	flag, ok := c.active[scenario]
	if !ok {
		flag = &atomic.Bool{}
		c.active[scenario] = flag
	}
	flag.Store(true)

	schedule.IsActive = true
	schedule.ActivationCount++
	activatedAt := now
	schedule.LastActivated = &activatedAt
	c.schedules[scenario] = schedule

	return schedule, nil
}

// Deactivate clears a scenario's active flag and returns to normal
// operations.
func (c *FallbackCatalogue) Deactivate(scenario domain.FallbackScenario) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if flag, ok := c.active[scenario]; ok {
		flag.Store(false)
	}
	if schedule, ok := c.schedules[scenario]; ok {
		schedule.IsActive = false
		c.schedules[scenario] = schedule
	}
}

// IsActive reports whether scenario is currently the active fallback.
func (c *FallbackCatalogue) IsActive(scenario domain.FallbackScenario) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	flag, ok := c.active[scenario]
	return ok && flag.Load()
}

// Active returns every currently-active fallback schedule.
func (c *FallbackCatalogue) Active() []domain.FallbackSchedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.FallbackSchedule
	for scenario, schedule := range c.schedules {
		if flag, ok := c.active[scenario]; ok && flag.Load() {
			out = append(out, schedule)
		}
	}
	return out
}

// Get returns the registered schedule for scenario, if any.
func (c *FallbackCatalogue) Get(scenario domain.FallbackScenario) (domain.FallbackSchedule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schedule, ok := c.schedules[scenario]
	return schedule, ok
}

func (c *FallbackCatalogue) logWarn(operation string, err error) {
	if c.log == nil {
		return
	}
	c.log.WithFields(logging.NewFields().Component("resilience").Operation(operation).Error(err).ToLogrus()).Warn("fallback catalogue operation degraded")
}

// RecommendScenario picks the best fallback scenario for a described
// situation, mirroring the original's priority ladder: an active external
// emergency outranks everything, then PCS season at scale, then holiday
// skeleton, then plain faculty-loss count.
func RecommendScenario(facultyLossCount int, isPCSSeason, isHoliday, isEmergency bool) (domain.FallbackScenario, bool) {
	switch {
	case isEmergency:
		return domain.FallbackMassCasualty, true
	case isPCSSeason && facultyLossCount >= 5:
		return domain.FallbackPCSSeason50, true
	case isHoliday:
		return domain.FallbackHolidaySkeleton, true
	case facultyLossCount >= 2:
		return domain.FallbackDoubleLoss, true
	case facultyLossCount >= 1:
		return domain.FallbackSingleLoss, true
	default:
		return "", false
	}
}
