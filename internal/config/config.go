// Package config provides configuration loading for the electorate core.
// Defaults are usable out of the box; a YAML file and a few environment
// variables override them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can say "100ms" or "30s".
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or raw nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// Config contains all tunable settings for the simulation core.
type Config struct {
	// Seed drives every deterministic subsystem (seeding, sampling, noise).
	Seed int64 `yaml:"seed"`

	// TickInterval is the wall-clock duration of one simulation tick.
	TickInterval Duration `yaml:"tick_interval"`

	Relevance RelevanceConfig `yaml:"relevance"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RelevanceConfig tunes the classifier. The scoring weights are deliberately
// configuration rather than constants: the observed values in the field were
// never derived from a documented formula.
type RelevanceConfig struct {
	// PassInterval is how many ticks elapse between classification passes.
	PassInterval uint64 `yaml:"pass_interval"`

	// Weights for the normalized score components. They should sum to ~1
	// but the classifier renormalizes, so any positive values work.
	WeightDistance   float64 `yaml:"weight_distance"`
	WeightRecency    float64 `yaml:"weight_recency"`
	WeightVolatility float64 `yaml:"weight_volatility"`

	// Score thresholds mapping to tiers: >= High ⇒ High, >= Medium ⇒ Medium,
	// >= Low ⇒ Low, below ⇒ Dormant.
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
	LowThreshold    float64 `yaml:"low_threshold"`

	// RecencyScale normalizes ticks-since-last-update into [0, 1]; a voter
	// this stale scores maximum recency.
	RecencyScale uint64 `yaml:"recency_scale"`
}

// ScheduleConfig tunes the per-tick working-set selection.
type ScheduleConfig struct {
	// Budget is the number of full voter updates allowed per tick.
	Budget int `yaml:"budget"`

	// LowSampleRate selects 1-in-N Low-tier voters each tick.
	LowSampleRate int `yaml:"low_sample_rate"`

	// DormantInterval is the tick interval between Dormant aging sweeps.
	DormantInterval uint64 `yaml:"dormant_interval"`

	// Staleness ceilings per tier, in ticks. A voter past its ceiling is
	// force-included even when the budget overflows.
	HighStaleTicks    uint64 `yaml:"high_stale_ticks"`
	MediumStaleTicks  uint64 `yaml:"medium_stale_ticks"`
	LowStaleTicks     uint64 `yaml:"low_stale_ticks"`
	DormantStaleTicks uint64 `yaml:"dormant_stale_ticks"`
}

// GatewayConfig tunes batching, caching, and the circuit breaker.
type GatewayConfig struct {
	MaxBatchSize  int      `yaml:"max_batch_size"`
	WindowTimeout Duration `yaml:"window_timeout"`

	CacheTTL      Duration `yaml:"cache_ttl"`
	CacheCapacity int      `yaml:"cache_capacity"`

	// FailureThreshold consecutive failures open the breaker for Cooldown.
	FailureThreshold int      `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`

	// Workers bounds concurrent external dispatches.
	Workers int `yaml:"workers"`

	// Cohort size bounds for the similarity clusterer.
	MinCohortSize int `yaml:"min_cohort_size"`
	MaxCohortSize int `yaml:"max_cohort_size"`
}

// AnalysisConfig configures the external analysis service client.
type AnalysisConfig struct {
	// Endpoint is the batch analysis URL. Empty disables the real client
	// and the gateway falls back to the deterministic mock.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates against the analysis service.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-call deadline for a dispatched batch.
	Timeout Duration `yaml:"timeout"`

	// FlagVolatility is the opinion volatility above which a High-tier
	// voter is flagged for external analysis.
	FlagVolatility float64 `yaml:"flag_volatility"`
}

// SnapshotConfig configures population persistence.
type SnapshotConfig struct {
	Path          string `yaml:"path"`
	IntervalTicks uint64 `yaml:"interval_ticks"`
}

// APIConfig configures the HTTP status API.
type APIConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig configures log verbosity: "debug", "info", or "warn".
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the baseline configuration: 10,000 voters' worth of
// scheduling headroom at 60 ticks/sec with a 1,000-update budget.
func Default() Config {
	return Config{
		Seed:         42,
		TickInterval: Duration(time.Second / 60),
		Relevance: RelevanceConfig{
			PassInterval:     10,
			WeightDistance:   0.4,
			WeightRecency:    0.3,
			WeightVolatility: 0.3,
			HighThreshold:    0.75,
			MediumThreshold:  0.45,
			LowThreshold:     0.15,
			RecencyScale:     120,
		},
		Schedule: ScheduleConfig{
			Budget:            1000,
			LowSampleRate:     8,
			DormantInterval:   180,
			HighStaleTicks:    2,
			MediumStaleTicks:  30,
			LowStaleTicks:     120,
			DormantStaleTicks: 360,
		},
		Gateway: GatewayConfig{
			MaxBatchSize:     50,
			WindowTimeout:    Duration(100 * time.Millisecond),
			CacheTTL:         Duration(time.Hour),
			CacheCapacity:    10000,
			FailureThreshold: 5,
			Cooldown:         Duration(30 * time.Second),
			Workers:          4,
			MinCohortSize:    5,
			MaxCohortSize:    50,
		},
		Analysis: AnalysisConfig{
			Timeout:        Duration(30 * time.Second),
			FlagVolatility: 0.35,
		},
		Snapshot: SnapshotConfig{
			Path:          "data/electorate.db",
			IntervalTicks: 3600,
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given YAML path layered over defaults.
// An empty path returns defaults. Environment variables ELECTORATE_ANALYSIS_URL
// and ELECTORATE_ANALYSIS_KEY override the analysis endpoint settings last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if url := os.Getenv("ELECTORATE_ANALYSIS_URL"); url != "" {
		cfg.Analysis.Endpoint = url
	}
	if key := os.Getenv("ELECTORATE_ANALYSIS_KEY"); key != "" {
		cfg.Analysis.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduler or gateway cannot honor.
func (c Config) Validate() error {
	if c.Schedule.Budget <= 0 {
		return fmt.Errorf("schedule budget must be positive, got %d", c.Schedule.Budget)
	}
	if c.Schedule.LowSampleRate <= 0 {
		return fmt.Errorf("low sample rate must be positive, got %d", c.Schedule.LowSampleRate)
	}
	if c.Gateway.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.Gateway.MaxBatchSize)
	}
	if c.Gateway.MinCohortSize > c.Gateway.MaxCohortSize {
		return fmt.Errorf("min cohort size %d exceeds max %d",
			c.Gateway.MinCohortSize, c.Gateway.MaxCohortSize)
	}
	if c.Gateway.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive, got %d", c.Gateway.FailureThreshold)
	}
	if c.Relevance.HighThreshold <= c.Relevance.MediumThreshold ||
		c.Relevance.MediumThreshold <= c.Relevance.LowThreshold {
		return fmt.Errorf("relevance thresholds must be strictly descending")
	}
	return nil
}
