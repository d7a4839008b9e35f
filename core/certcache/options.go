package certcache

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/certward/core/certstore"
)

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached certificates. Values below 1
// are ignored.
func WithMaxEntries(max int) Option {
	return func(c *Cache) {
		if max > 0 {
			c.max = max
		}
	}
}

// WithFallback resolves cache misses against a persistent store.
func WithFallback(store certstore.Store) Option {
	return func(c *Cache) {
		c.fallback = store
	}
}

// WithLogger sets the logger for eviction and decode diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSweepInterval overrides how often expired entries are collected.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// withClock injects a deterministic clock for tests.
func withClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}
