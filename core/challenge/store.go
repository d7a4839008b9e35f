package challenge

import (
	"sync"
	"time"
)

const (
	defaultTTL           = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

type entry struct {
	response  string
	expiresAt time.Time
}

// Store is an in-memory, TTL-bounded map of ACME challenge tokens to the
// key-authorization body the CA expects to fetch over HTTP. Entries expire
// after the TTL whether or not they were explicitly deleted; a background
// sweep bounds memory even when validation never completes.
//
// The store is intentionally not persistent: challenges are re-issued on
// every provisioning attempt, so losing entries on restart is harmless.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the entry lifetime (default 10 minutes).
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSweepInterval overrides how often expired entries are collected
// (default 1 minute).
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// withClock injects a time source for tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a challenge store and starts its expiry sweep.
// Call Close when the store is no longer needed.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:       make(map[string]entry),
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweep()

	return s
}

// Put stores the expected response body for a token. The entry expires
// TTL from now; storing again resets the clock.
func (s *Store) Put(token, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry{
		response:  response,
		expiresAt: s.now().Add(s.ttl),
	}
}

// Get returns the stored response for a token. Entries at or past their
// expiry behave as absent and are removed opportunistically.
func (s *Store) Get(token string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	if !s.now().Before(e.expiresAt) {
		s.Delete(token)
		return "", false
	}

	return e.response, true
}

// Delete removes a token.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

// Len reports the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the background sweep. The store remains usable; entries are
// still lazily expired on Get.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) sweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.collectExpired()
		}
	}
}

func (s *Store) collectExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, token)
		}
	}
}
