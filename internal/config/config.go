// Package config loads the scheduling core's YAML configuration into a
// typed Config, applying defaults for any section a deployment omits and
// allowing a handful of environment variables to override the file for
// container-friendly deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	appErr "github.com/dutyroster/scheduler-core/internal/errors"
)

// RunConfig controls the control loop's stopping rules.
type RunConfig struct {
	MaxIterations   int     `yaml:"max_iterations"`
	TargetScore     float64 `yaml:"target_score"`
	StagnationLimit int     `yaml:"stagnation_limit"`
}

// GeneratorConfig controls the candidate generator's algorithm
// preference and restart/diversification behavior.
type GeneratorConfig struct {
	Algorithms            []string      `yaml:"algorithms"`
	Timeout               time.Duration `yaml:"timeout"`
	MaxRestarts           int           `yaml:"max_restarts"`
	NeighborhoodSize      int           `yaml:"neighborhood_size"`
	DiversificationFactor float64       `yaml:"diversification_factor"`
}

// ResilienceConfig controls utilization-band thresholds and the
// metastability detector's plateau window.
type ResilienceConfig struct {
	UtilizationYellow float64 `yaml:"utilization_yellow"`
	UtilizationOrange float64 `yaml:"utilization_orange"`
	UtilizationRed    float64 `yaml:"utilization_red"`
	PlateauWindow     int     `yaml:"plateau_window"`
	PlateauEpsilon    float64 `yaml:"plateau_epsilon"`
}

// CacheConfig controls the two-tier cache's TTLs and L1 size bound.
type CacheConfig struct {
	L1TTL        time.Duration `yaml:"l1_ttl"`
	L2TTL        time.Duration `yaml:"l2_ttl"`
	L1MaxEntries int           `yaml:"l1_max_entries"`
}

// QueueConfig controls retry backoff and circuit breaker tuning for the
// task queue.
type QueueConfig struct {
	MaxRetries              int           `yaml:"max_retries"`
	BackoffBase             time.Duration `yaml:"backoff_base"`
	BackoffMax              time.Duration `yaml:"backoff_max"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
	CircuitBreakerReset     time.Duration `yaml:"circuit_breaker_reset"`
}

// PersistenceConfig controls the record store's connection string and the
// run-state store's directory root.
type PersistenceConfig struct {
	DSN    string `yaml:"dsn"`
	RunDir string `yaml:"run_dir"`
}

// LoggingConfig controls the shared logging facade's level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration object loaded by Load.
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Cache       CacheConfig       `yaml:"cache"`
	Queue       QueueConfig       `yaml:"queue"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

var validAlgorithms = map[string]bool{
	"greedy": true,
	"cp_sat": true,
	"pulp":   true,
	"hybrid": true,
}

const (
	defaultMaxIterations     = 100
	defaultTargetScore       = 0.9
	defaultStagnationLimit   = 10
	defaultGeneratorTimeout  = 60 * time.Second
	defaultMaxRestarts       = 3
	defaultNeighborhoodSize  = 5
	defaultDiversification   = 0.2
	defaultUtilizationYellow = 0.75
	defaultUtilizationOrange = 0.85
	defaultUtilizationRed    = 0.95
	defaultPlateauWindow     = 8
	defaultPlateauEpsilon    = 0.005
	defaultL1TTL             = 30 * time.Second
	defaultL2TTL             = 5 * time.Minute
	defaultL1MaxEntries      = 256
	defaultQueueMaxRetries   = 5
	defaultBackoffBase       = 100 * time.Millisecond
	defaultBackoffMax        = 10 * time.Second
	defaultBreakerThreshold  = 0.5
	defaultBreakerReset      = 10 * time.Second
	defaultRunDir            = "./runs"
)

var defaultAlgorithms = []string{"greedy", "cp_sat", "pulp", "hybrid"}

// Load reads and parses a YAML config file at path, applies defaults for
// missing fields, overlays environment variables, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ErrorTypeValidation, "failed to read config file: %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, appErr.Wrapf(err, appErr.ErrorTypeValidation, "failed to parse config file: %s", path)
	}

	applyDefaults(&cfg)

	if err := loadFromEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Run.MaxIterations == 0 {
		cfg.Run.MaxIterations = defaultMaxIterations
	}
	if cfg.Run.TargetScore == 0 {
		cfg.Run.TargetScore = defaultTargetScore
	}
	if cfg.Run.StagnationLimit == 0 {
		cfg.Run.StagnationLimit = defaultStagnationLimit
	}

	if len(cfg.Generator.Algorithms) == 0 {
		cfg.Generator.Algorithms = defaultAlgorithms
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = defaultGeneratorTimeout
	}
	if cfg.Generator.MaxRestarts == 0 {
		cfg.Generator.MaxRestarts = defaultMaxRestarts
	}
	if cfg.Generator.NeighborhoodSize == 0 {
		cfg.Generator.NeighborhoodSize = defaultNeighborhoodSize
	}
	if cfg.Generator.DiversificationFactor == 0 {
		cfg.Generator.DiversificationFactor = defaultDiversification
	}

	if cfg.Resilience.UtilizationYellow == 0 {
		cfg.Resilience.UtilizationYellow = defaultUtilizationYellow
	}
	if cfg.Resilience.UtilizationOrange == 0 {
		cfg.Resilience.UtilizationOrange = defaultUtilizationOrange
	}
	if cfg.Resilience.UtilizationRed == 0 {
		cfg.Resilience.UtilizationRed = defaultUtilizationRed
	}
	if cfg.Resilience.PlateauWindow == 0 {
		cfg.Resilience.PlateauWindow = defaultPlateauWindow
	}
	if cfg.Resilience.PlateauEpsilon == 0 {
		cfg.Resilience.PlateauEpsilon = defaultPlateauEpsilon
	}

	if cfg.Cache.L1TTL == 0 {
		cfg.Cache.L1TTL = defaultL1TTL
	}
	if cfg.Cache.L2TTL == 0 {
		cfg.Cache.L2TTL = defaultL2TTL
	}
	if cfg.Cache.L1MaxEntries == 0 {
		cfg.Cache.L1MaxEntries = defaultL1MaxEntries
	}

	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = defaultQueueMaxRetries
	}
	if cfg.Queue.BackoffBase == 0 {
		cfg.Queue.BackoffBase = defaultBackoffBase
	}
	if cfg.Queue.BackoffMax == 0 {
		cfg.Queue.BackoffMax = defaultBackoffMax
	}
	if cfg.Queue.CircuitBreakerThreshold == 0 {
		cfg.Queue.CircuitBreakerThreshold = defaultBreakerThreshold
	}
	if cfg.Queue.CircuitBreakerReset == 0 {
		cfg.Queue.CircuitBreakerReset = defaultBreakerReset
	}

	if cfg.Persistence.RunDir == "" {
		cfg.Persistence.RunDir = defaultRunDir
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// loadFromEnv overlays a small set of deployment-time overrides on top of
// an already-loaded config. Unset environment variables leave the
// corresponding field untouched.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("SCHEDULER_PERSISTENCE_DSN"); v != "" {
		cfg.Persistence.DSN = v
	}
	if v := os.Getenv("SCHEDULER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCHEDULER_RUN_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return appErr.Wrapf(err, appErr.ErrorTypeValidation, "invalid SCHEDULER_RUN_MAX_ITERATIONS: %s", v)
		}
		cfg.Run.MaxIterations = n
	}
	return nil
}

// validate rejects a config with out-of-range or internally inconsistent
// values.
func validate(cfg *Config) error {
	if cfg.Persistence.DSN == "" {
		return appErr.NewValidationError("persistence DSN is required")
	}
	if cfg.Run.MaxIterations <= 0 {
		return appErr.NewValidationError("max iterations must be greater than 0")
	}
	if cfg.Run.TargetScore < 0 || cfg.Run.TargetScore > 1 {
		return appErr.NewValidationError("target score must be between 0.0 and 1.0")
	}
	if len(cfg.Generator.Algorithms) == 0 {
		return appErr.NewValidationError("at least one generator algorithm is required")
	}
	for _, alg := range cfg.Generator.Algorithms {
		if !validAlgorithms[alg] {
			return appErr.New(appErr.ErrorTypeValidation, fmt.Sprintf("unsupported generator algorithm: %s", alg))
		}
	}
	if !(cfg.Resilience.UtilizationYellow < cfg.Resilience.UtilizationOrange &&
		cfg.Resilience.UtilizationOrange < cfg.Resilience.UtilizationRed) {
		return appErr.NewValidationError("utilization bands must be strictly ascending (yellow < orange < red)")
	}
	if cfg.Queue.CircuitBreakerThreshold < 0 || cfg.Queue.CircuitBreakerThreshold > 1 {
		return appErr.NewValidationError("circuit breaker threshold must be between 0.0 and 1.0")
	}
	return nil
}
