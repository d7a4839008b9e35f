package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/certward/core/certstore"
)

// Compile-time check that Store implements the certstore contract.
var _ certstore.Store = (*Store)(nil)

// Domain-specific Redis errors, checked with errors.Is.
var (
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	ErrConnectionFailed   = errors.New("failed to connect to redis")
)

const (
	fieldCert = "cert"
	fieldKey  = "key"
)

// Config contains Redis connection settings.
type Config struct {
	ConnectionURL  string        `env:"CERT_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix      string        `env:"CERT_REDIS_KEY_PREFIX" envDefault:"cert:"`
	ConnectTimeout time.Duration `env:"CERT_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Commander is the subset of redis commands the store issues. Satisfied
// by *redis.Client; narrow so tests can substitute a mock.
type Commander interface {
	HSet(ctx context.Context, key string, values ...any) *goredis.IntCmd
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store persists certificate/key pairs as one Redis hash per domain with
// cert and key fields, under <prefix><domain>.
type Store struct {
	client Commander
	prefix string
}

// New connects to Redis and verifies connectivity with a ping before
// returning the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := goredis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	client := goredis.NewClient(opts)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. Used by tests and by callers
// sharing one connection pool across components.
func NewWithClient(client Commander, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Read fetches the certificate/key hash for a domain. A hash missing
// either field reports certstore.ErrNotFound so partial material is
// treated as absent.
func (s *Store) Read(ctx context.Context, domain string) ([]byte, []byte, error) {
	fields, err := s.client.HGetAll(ctx, s.key(domain)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis certstore: read: %w", err)
	}

	certPEM, hasCert := fields[fieldCert]
	keyPEM, hasKey := fields[fieldKey]
	if !hasCert || !hasKey {
		return nil, nil, fmt.Errorf("%w: %s", certstore.ErrNotFound, strings.ToLower(domain))
	}
	return []byte(certPEM), []byte(keyPEM), nil
}

// Write stores both PEM blobs in one HSET so readers never observe a
// certificate without its key.
func (s *Store) Write(ctx context.Context, domain string, certPEM, keyPEM []byte) error {
	err := s.client.HSet(ctx, s.key(domain),
		fieldCert, string(certPEM),
		fieldKey, string(keyPEM),
	).Err()
	if err != nil {
		return fmt.Errorf("redis certstore: write: %w", err)
	}
	return nil
}

// Delete removes the domain's hash. Missing hashes are a no-op.
func (s *Store) Delete(ctx context.Context, domain string) error {
	if err := s.client.Del(ctx, s.key(domain)).Err(); err != nil {
		return fmt.Errorf("redis certstore: delete: %w", err)
	}
	return nil
}

func (s *Store) key(domain string) string {
	return s.prefix + strings.ToLower(domain)
}
