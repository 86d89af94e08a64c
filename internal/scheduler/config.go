package scheduler

import (
	"time"

	"github.com/smallbiznis/freightpay/internal/config"
)

// Config controls the overdue sweep.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	// LockTTL bounds both the redis lease and a single run.
	LockTTL time.Duration
	// MaxBatches caps consecutive full batches in one run.
	MaxBatches int
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 15 * time.Minute,
		BatchSize:   200,
		LockTTL:     5 * time.Minute,
		MaxBatches:  20,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Overdue.Enabled,
		RunInterval: cfg.Overdue.Interval,
		BatchSize:   cfg.Overdue.BatchSize,
		LockTTL:     cfg.Overdue.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	return c
}
