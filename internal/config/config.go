// Package config loads the memory engine's environment-driven
// configuration surface (spec.md §6).
//
// Modeled on the teacher's pkg/config.Config: struct-tagged fields decoded
// by github.com/joeshaw/envdecode, a New() constructor seeding spec.md's
// documented defaults, and github.com/joho/godotenv optionally loading a
// local .env file before decoding. The teacher's YAML-file layer
// (configs/config.yaml via gopkg.in/yaml.v3) and its Neo/Supabase/MarbleRun
// fields have no equivalent here and are dropped; see DESIGN.md.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/r3e-network/agentmemory/internal/memerr"
)

// StorageConfig controls the durable Postgres backend and the embedded
// in-process cache (spec.md §6 storage/pool/cache sections).
type StorageConfig struct {
	// DSN must use the postgres:// or postgresql:// scheme.
	DSN                 string        `env:"MEMORY_STORAGE_DSN"`
	PoolMaxConns        int           `env:"MEMORY_POOL_MAX_CONNECTIONS,default=10"`
	PoolKeepalive       time.Duration `env:"MEMORY_POOL_KEEPALIVE,default=30s"`
	CacheMaxEntries     int           `env:"MEMORY_CACHE_MAX_ENTRIES,default=1000"`
	CacheDefaultTTL     time.Duration `env:"MEMORY_CACHE_DEFAULT_TTL,default=1h"`
	CapacityMaxEpisodes int           `env:"MEMORY_CAPACITY_MAX_EPISODES,default=10000"`
}

// QueueConfig controls the background pattern-extraction worker pool
// (spec.md §6 queue section).
type QueueConfig struct {
	WorkerCount int `env:"MEMORY_QUEUE_WORKER_COUNT,default=4"`
	// MaxQueueSize is forwarded to queue.Config.MaxQueueSize: 0 means
	// unbounded.
	MaxQueueSize int           `env:"MEMORY_QUEUE_MAX_SIZE,default=1000"`
	PollInterval time.Duration `env:"MEMORY_QUEUE_POLL_INTERVAL,default=100ms"`
}

// ScoringConfig controls the thresholds shared by pattern effectiveness,
// similarity matching, and quality gating (spec.md §6 scoring section).
type ScoringConfig struct {
	QualityThreshold    float64 `env:"MEMORY_QUALITY_THRESHOLD,default=0.7"`
	SimilarityThreshold float64 `env:"MEMORY_SIMILARITY_THRESHOLD,default=0.8"`
	DecayThreshold      float64 `env:"MEMORY_DECAY_THRESHOLD,default=0.3"`
	HalfLifeDays        int     `env:"MEMORY_HALF_LIFE_DAYS,default=30"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// Config is the top-level configuration the engine's entry points decode.
type Config struct {
	Storage StorageConfig
	Queue   QueueConfig
	Scoring ScoringConfig
	Logging LoggingConfig
}

// New returns a Config populated with spec.md §6's documented defaults,
// independent of envdecode's own `default=` tags, so callers that build a
// Config by hand (tests, embedders) still get sane values.
func New() *Config {
	return &Config{
		Storage: StorageConfig{
			PoolMaxConns:        10,
			PoolKeepalive:       30 * time.Second,
			CacheMaxEntries:     1000,
			CacheDefaultTTL:     time.Hour,
			CapacityMaxEpisodes: 10000,
		},
		Queue: QueueConfig{
			WorkerCount:  4,
			MaxQueueSize: 1000,
			PollInterval: 100 * time.Millisecond,
		},
		Scoring: ScoringConfig{
			QualityThreshold:    0.7,
			SimilarityThreshold: 0.8,
			DecayThreshold:      0.3,
			HalfLifeDays:        30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from an optional .env file (if present) plus the
// process environment, falling back to New()'s defaults for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()
	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the decoded configuration's cross-field and protocol
// invariants (spec.md §6's "storage endpoints validate protocol").
func (c *Config) Validate() error {
	if c.Storage.DSN != "" {
		u, err := url.Parse(c.Storage.DSN)
		if err != nil {
			return fmt.Errorf("invalid storage DSN: %w", err)
		}
		switch u.Scheme {
		case "postgres", "postgresql":
		default:
			return memerr.ErrSecurity(fmt.Sprintf("storage DSN must use postgres:// or postgresql://, got %q", u.Scheme))
		}
	}

	if c.Scoring.QualityThreshold < 0 || c.Scoring.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be in [0,1], got %f", c.Scoring.QualityThreshold)
	}
	if c.Scoring.SimilarityThreshold < 0 || c.Scoring.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %f", c.Scoring.SimilarityThreshold)
	}
	if c.Scoring.DecayThreshold < 0 || c.Scoring.DecayThreshold > 1 {
		return fmt.Errorf("decay threshold must be in [0,1], got %f", c.Scoring.DecayThreshold)
	}
	if c.Storage.PoolMaxConns <= 0 {
		return fmt.Errorf("pool max connections must be positive, got %d", c.Storage.PoolMaxConns)
	}
	if c.Queue.WorkerCount <= 0 {
		return fmt.Errorf("queue worker count must be positive, got %d", c.Queue.WorkerCount)
	}

	return nil
}

// HalfLife returns the effectiveness decay half-life as a time.Duration.
func (c *Config) HalfLife() time.Duration {
	return time.Duration(c.Scoring.HalfLifeDays) * 24 * time.Hour
}
