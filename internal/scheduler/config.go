package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes. When EnabledJobs is
// empty every job runs, which is the single-binary default.
type Config struct {
	RunInterval       time.Duration
	BatchSize         int
	JobTimeout        time.Duration
	EnabledJobs       []string
	LeaderLockTTL     time.Duration
	DisableLeaderLock bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     50,
		JobTimeout:    30 * time.Second,
		LeaderLockTTL: 90 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LeaderLockTTL <= 0 {
		c.LeaderLockTTL = defaults.LeaderLockTTL
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
