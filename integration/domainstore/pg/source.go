package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/certward/core/renewal"
)

// Compile-time check that Source satisfies the renewal contract.
var _ renewal.DomainSource = (*Source)(nil)

// ErrEmptyConnectionString is returned when no connection string is
// configured.
var ErrEmptyConnectionString = errors.New("empty postgres connection string")

// Config contains PostgreSQL connection settings for the domain source.
type Config struct {
	ConnectionString string        `env:"CERT_PG_CONN_URL"`
	Table            string        `env:"CERT_PG_DOMAINS_TABLE" envDefault:"custom_domains"`
	ConnectTimeout   time.Duration `env:"CERT_PG_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Querier is the subset of pgx the source uses. Satisfied by
// *pgxpool.Pool; narrow so tests can substitute a mock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source lists verified tenant custom domains from Postgres, feeding the
// renewal orchestrator's tenant sweep.
type Source struct {
	db    Querier
	query string
}

// New connects a pool and verifies connectivity before returning the
// source.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionString
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.New(pingCtx, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("pg domainstore: connect: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg domainstore: ping: %w", err)
	}

	return NewWithQuerier(pool, cfg.Table), nil
}

// NewWithQuerier wraps an existing pool or mock. Table defaults to
// custom_domains when empty.
func NewWithQuerier(db Querier, table string) *Source {
	if table == "" {
		table = "custom_domains"
	}
	return &Source{
		db:    db,
		query: fmt.Sprintf("SELECT domain FROM %s WHERE verified = true ORDER BY domain", table),
	}
}

// Domains returns the verified custom domains, lowercased by convention
// at write time.
func (s *Source) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("pg domainstore: query domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("pg domainstore: scan domain: %w", err)
		}
		domains = append(domains, domain)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg domainstore: iterate domains: %w", err)
	}
	return domains, nil
}
