package certcache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"

	"github.com/dmitrymomot/certward/core/certstore"
)

const (
	defaultMaxEntries    = 1000
	defaultSweepInterval = 5 * time.Minute
)

// Record is a decoded certificate held in memory, ready for TLS handshakes.
type Record struct {
	Domain         string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	Certificate    *tls.Certificate
	Leaf           *x509.Certificate
	CachedAt       time.Time
	ExpiresAt      time.Time
}

type entry struct {
	record     *Record
	accessedAt time.Time
}

// Stats reports the cache's current footprint.
type Stats struct {
	Entries     int
	MemoryBytes int64
}

// Cache keeps decoded certificates in memory, bounded by an LRU policy.
// Hostnames are case-insensitive. When a fallback store is configured,
// misses are resolved against it and promoted into the cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	max      int
	fallback certstore.Store
	logger   *slog.Logger
	now      func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// New returns a started cache. Close releases its sweep goroutine.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]*entry),
		max:           defaultMaxEntries,
		logger:        slog.Default(),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

// Put decodes and stores a certificate, replacing any previous entry for
// the domain. The decoded record is returned so callers can reuse it
// without a follow-up Get.
func (c *Cache) Put(domain string, certPEM, keyPEM []byte) (*Record, error) {
	record, err := c.decode(domain, certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[record.Domain] = &entry{record: record, accessedAt: c.now()}
	if len(c.entries) > c.max {
		c.evictLocked()
	}
	c.mu.Unlock()

	return record, nil
}

// Get returns the cached record for a domain, refreshing its LRU position.
// On a miss it consults the fallback store, caching whatever it finds.
func (c *Cache) Get(ctx context.Context, domain string) (*Record, error) {
	key := strings.ToLower(domain)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.accessedAt = c.now()
		record := e.record
		c.mu.Unlock()
		return record, nil
	}
	c.mu.Unlock()

	if c.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}

	certPEM, keyPEM, err := c.fallback.Read(ctx, key)
	if err != nil {
		if errors.Is(err, certstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
		}
		return nil, fmt.Errorf("certcache: read fallback: %w", err)
	}

	record, err := c.Put(key, certPEM, keyPEM)
	if err != nil {
		// A stored certificate that no longer decodes is treated as absent
		// so the caller can provision a fresh one.
		c.logger.WarnContext(ctx, "stored certificate failed to decode",
			slog.String("domain", key), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return record, nil
}

// Delete removes a domain from the cache. Unknown domains are a no-op.
func (c *Cache) Delete(domain string) {
	key := strings.ToLower(domain)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Contains reports whether the domain is currently cached, without
// touching its LRU position or the fallback store.
func (c *Cache) Contains(domain string) bool {
	key := strings.ToLower(domain)
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	return ok
}

// Len returns the number of cached certificates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the entry count and the PEM bytes held in memory.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bytes int64
	for _, e := range c.entries {
		bytes += int64(len(e.record.CertificatePEM) + len(e.record.PrivateKeyPEM))
	}
	return Stats{Entries: len(c.entries), MemoryBytes: bytes}
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) decode(domain string, certPEM, keyPEM []byte) (*Record, error) {
	certs, err := certcrypto.ParsePEMBundle(certPEM)
	if err != nil || len(certs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, domain)
	}
	if _, err := certcrypto.ParsePEMPrivateKey(keyPEM); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, domain)
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: key does not match certificate", ErrInvalidPrivateKey, domain)
	}

	leaf := certs[0]
	pair.Leaf = leaf
	return &Record{
		Domain:         strings.ToLower(domain),
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		Certificate:    &pair,
		Leaf:           leaf,
		CachedAt:       c.now(),
		ExpiresAt:      leaf.NotAfter,
	}, nil
}

// evictLocked drops the least recently used entries in one batch, down to
// max minus a tenth of max, so a full cache does not evict on every Put.
func (c *Cache) evictLocked() {
	target := c.max - c.max/10
	if target < 1 {
		target = 1
	}
	if len(c.entries) <= target {
		return
	}

	type aged struct {
		key        string
		accessedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key: key, accessedAt: e.accessedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].accessedAt.Before(all[j].accessedAt) })

	evicted := 0
	for _, a := range all {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, a.key)
		evicted++
	}
	c.logger.Debug("evicted least recently used certificates",
		slog.Int("evicted", evicted), slog.Int("remaining", len(c.entries)))
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep drops entries whose certificates have expired and re-applies the
// capacity bound.
func (c *Cache) sweep() {
	now := c.now()
	c.mu.Lock()
	for key, e := range c.entries {
		if !e.record.ExpiresAt.After(now) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) > c.max {
		c.evictLocked()
	}
	c.mu.Unlock()
}
