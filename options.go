package coach

import (
	"time"
)

// Option configures a Coach.
type Option func(*config)

type config struct {
	concurrency int
	store       RecordStore
	level       LevelEstimator
	now         func() time.Time
}

func defaultConfig() config {
	return config{
		concurrency: 4,
		now:         time.Now,
	}
}

// WithConcurrency bounds how many essays AssessBatch grades at once
// (default: 4).
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithStore persists every record Assess builds.
func WithStore(s RecordStore) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithLevelEstimator adds an overall level estimate to each record.
func WithLevelEstimator(l LevelEstimator) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithClock sets the clock used for record timestamps (default: time.Now).
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
