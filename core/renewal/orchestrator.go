package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"

	"github.com/dmitrymomot/certward/core/acme"
	"github.com/dmitrymomot/certward/core/certcache"
	"github.com/dmitrymomot/certward/core/certstore"
	"github.com/dmitrymomot/certward/core/telemetry"
)

const (
	defaultInitialDelay    = 10 * time.Second
	defaultPrimaryInterval = 12 * time.Hour
	defaultTenantInterval  = 24 * time.Hour
	defaultRetryDelay      = 5 * time.Minute
	defaultRenewBefore     = 30 * 24 * time.Hour
)

// State tracks where a domain is in its certificate lifecycle.
type State string

const (
	StateMissing      State = "missing"
	StateProvisioning State = "provisioning"
	StateIssued       State = "issued"
	StateExpiring     State = "expiring"
	StateFailed       State = "failed"
)

// DomainStatus is a snapshot of one domain's lifecycle position.
type DomainStatus struct {
	Domain      string
	State       State
	ExpiresAt   time.Time
	LastAttempt time.Time
	LastError   string
}

// Provisioner runs one full certificate issuance for a domain.
type Provisioner interface {
	Provision(ctx context.Context, domain string) (*acme.Certificate, error)
}

// DomainSource supplies dynamically registered domains, typically tenant
// custom domains from a database. Sources are polled once per tenant sweep.
type DomainSource interface {
	Domains(ctx context.Context) ([]string, error)
}

// Bootstrap guarantees fallback certificate material exists on disk.
type Bootstrap interface {
	Ensure() (certPath, keyPath string, err error)
}

// Registrar receives newly discovered domains so the TLS layer starts
// answering for them. Satisfied by the SNI dispatcher.
type Registrar interface {
	Add(domain string)
}

// Orchestrator drives first-time provisioning and periodic renewal across
// the managed domain set. Each domain is checked independently; a failed
// attempt is retried after a fixed delay without affecting other domains.
type Orchestrator struct {
	provisioner Provisioner
	store       certstore.Store
	cache       *certcache.Cache
	bootstrap   Bootstrap
	source      DomainSource
	registrar   Registrar

	primary []string

	initialDelay    time.Duration
	primaryInterval time.Duration
	tenantInterval  time.Duration
	retryDelay      time.Duration
	renewBefore     time.Duration

	mu       sync.Mutex
	statuses map[string]*DomainStatus
	locks    sync.Map // domain -> *sync.Mutex

	logger *slog.Logger
	sink   telemetry.Sink
	now    func() time.Time
}

// New builds an orchestrator for the given primary domains. Provisioner,
// store, cache, and bootstrap are required.
func New(provisioner Provisioner, store certstore.Store, cache *certcache.Cache, bootstrap Bootstrap, primaryDomains []string, opts ...Option) (*Orchestrator, error) {
	if provisioner == nil {
		return nil, errors.New("renewal: provisioner is required")
	}
	if store == nil {
		return nil, errors.New("renewal: certificate store is required")
	}
	if cache == nil {
		return nil, errors.New("renewal: certificate cache is required")
	}
	if bootstrap == nil {
		return nil, errors.New("renewal: bootstrap generator is required")
	}

	o := &Orchestrator{
		provisioner:     provisioner,
		store:           store,
		cache:           cache,
		bootstrap:       bootstrap,
		initialDelay:    defaultInitialDelay,
		primaryInterval: defaultPrimaryInterval,
		tenantInterval:  defaultTenantInterval,
		retryDelay:      defaultRetryDelay,
		renewBefore:     defaultRenewBefore,
		statuses:        make(map[string]*DomainStatus),
		logger:          slog.Default(),
		sink:            telemetry.NoopSink{},
		now:             time.Now,
	}
	for _, domain := range primaryDomains {
		o.primary = append(o.primary, strings.ToLower(domain))
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start runs the renewal loops until the context is canceled. The
// bootstrap certificate is ensured first so the TLS listener can serve
// handshakes immediately; real provisioning begins after a short delay.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, _, err := o.bootstrap.Ensure(); err != nil {
		// Fallback material is itself a fallback; its absence degrades
		// handshakes for unprovisioned domains but must not stop renewal.
		o.logger.ErrorContext(ctx, "bootstrap certificate generation failed", slog.Any("error", err))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.initialDelay):
	}

	o.sweepPrimary(ctx)
	o.sweepTenants(ctx)

	primaryTicker := time.NewTicker(o.primaryInterval)
	defer primaryTicker.Stop()
	tenantTicker := time.NewTicker(o.tenantInterval)
	defer tenantTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-primaryTicker.C:
			o.sweepPrimary(ctx)
		case <-tenantTicker.C:
			o.sweepTenants(ctx)
		}
	}
}

// CheckDomain inspects one domain and provisions a certificate when it is
// missing or expiring. It runs synchronously and serializes with any
// concurrent check for the same domain; a check already in flight returns
// ErrProvisioningInProgress.
func (o *Orchestrator) CheckDomain(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	lock := o.domainLock(domain)
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrProvisioningInProgress, domain)
	}
	defer lock.Unlock()

	expiresAt, err := o.storedExpiry(ctx, domain)
	switch {
	case err == nil && o.now().Add(o.renewBefore).Before(expiresAt):
		o.setStatus(domain, StateIssued, expiresAt, nil)
		return nil
	case err == nil:
		o.setStatus(domain, StateExpiring, expiresAt, nil)
	default:
		o.setStatus(domain, StateMissing, time.Time{}, nil)
	}

	return o.provision(ctx, domain)
}

// Status reports the lifecycle snapshot for a domain.
func (o *Orchestrator) Status(domain string) (DomainStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status, ok := o.statuses[strings.ToLower(domain)]
	if !ok {
		return DomainStatus{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return *status, nil
}

// Statuses returns snapshots for every domain the orchestrator has seen.
func (o *Orchestrator) Statuses() []DomainStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]DomainStatus, 0, len(o.statuses))
	for _, status := range o.statuses {
		out = append(out, *status)
	}
	return out
}

func (o *Orchestrator) sweepPrimary(ctx context.Context) {
	for _, domain := range o.primary {
		o.checkAsync(ctx, domain)
	}
}

func (o *Orchestrator) sweepTenants(ctx context.Context) {
	if o.source == nil {
		return
	}
	domains, err := o.source.Domains(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "listing tenant domains failed", slog.Any("error", err))
		return
	}
	for _, domain := range domains {
		if o.registrar != nil {
			o.registrar.Add(domain)
		}
		o.checkAsync(ctx, domain)
	}
}

// checkAsync runs a domain check in its own goroutine with a panic
// boundary, so one misbehaving domain cannot take down the sweep.
func (o *Orchestrator) checkAsync(ctx context.Context, domain string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.ErrorContext(ctx, "domain check panicked",
					slog.String("domain", domain), slog.Any("panic", r))
			}
		}()
		if err := o.CheckDomain(ctx, domain); err != nil && !errors.Is(err, ErrProvisioningInProgress) {
			o.logger.ErrorContext(ctx, "domain check failed",
				slog.String("domain", domain), slog.Any("error", err))
		}
	}()
}

// provision runs the full issuance flow and records the outcome. The
// domain lock is held by the caller.
func (o *Orchestrator) provision(ctx context.Context, domain string) error {
	o.setState(domain, StateProvisioning)
	start := o.now()

	cert, err := o.provisioner.Provision(ctx, domain)
	if err != nil {
		o.setStatusErr(domain, StateFailed, err)
		o.emit(ctx, domain, start, err)
		o.scheduleRetry(ctx, domain)
		return fmt.Errorf("renewal: provision %s: %w", domain, err)
	}

	if err := o.store.Write(ctx, domain, cert.CertificatePEM, cert.PrivateKeyPEM); err != nil {
		o.setStatusErr(domain, StateFailed, err)
		o.emit(ctx, domain, start, err)
		return fmt.Errorf("renewal: store certificate for %s: %w", domain, err)
	}
	if _, err := o.cache.Put(domain, cert.CertificatePEM, cert.PrivateKeyPEM); err != nil {
		// The certificate is persisted; a cache refresh failure only delays
		// serving it until the next lookup.
		o.logger.WarnContext(ctx, "caching issued certificate failed",
			slog.String("domain", domain), slog.Any("error", err))
	}

	o.setStatus(domain, StateIssued, cert.ExpiresAt, nil)
	o.emit(ctx, domain, start, nil)
	o.logger.InfoContext(ctx, "certificate provisioned",
		slog.String("domain", domain), slog.Time("expires_at", cert.ExpiresAt))
	return nil
}

// scheduleRetry re-checks a failed domain after the retry delay, unless
// the orchestrator has been stopped by then.
func (o *Orchestrator) scheduleRetry(ctx context.Context, domain string) {
	time.AfterFunc(o.retryDelay, func() {
		if ctx.Err() != nil {
			return
		}
		o.checkAsync(ctx, domain)
	})
}

// storedExpiry reads the persisted certificate and returns its leaf
// expiry. Unreadable or unparsable material is reported as an error so the
// caller provisions fresh material.
func (o *Orchestrator) storedExpiry(ctx context.Context, domain string) (time.Time, error) {
	certPEM, _, err := o.store.Read(ctx, domain)
	if err != nil {
		return time.Time{}, err
	}
	certs, err := certcrypto.ParsePEMBundle(certPEM)
	if err != nil || len(certs) == 0 {
		return time.Time{}, fmt.Errorf("renewal: parse stored certificate for %s: %w", domain, err)
	}
	return certs[0].NotAfter, nil
}

func (o *Orchestrator) setState(domain string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := o.statusLocked(domain)
	status.State = state
	status.LastAttempt = o.now()
}

func (o *Orchestrator) setStatus(domain string, state State, expiresAt time.Time, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := o.statusLocked(domain)
	status.State = state
	status.ExpiresAt = expiresAt
	status.LastError = ""
	if err != nil {
		status.LastError = err.Error()
	}
}

func (o *Orchestrator) setStatusErr(domain string, state State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := o.statusLocked(domain)
	status.State = state
	status.LastError = err.Error()
}

func (o *Orchestrator) statusLocked(domain string) *DomainStatus {
	status, ok := o.statuses[domain]
	if !ok {
		status = &DomainStatus{Domain: domain, State: StateMissing}
		o.statuses[domain] = status
	}
	return status
}

func (o *Orchestrator) domainLock(domain string) *sync.Mutex {
	lock, _ := o.locks.LoadOrStore(domain, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (o *Orchestrator) emit(ctx context.Context, domain string, start time.Time, err error) {
	outcome := telemetry.OutcomeSuccess
	metadata := map[string]any{"domain": domain}
	if err != nil {
		outcome = telemetry.OutcomeFailure
		metadata["error"] = err.Error()
	}
	o.sink.Emit(ctx, telemetry.NewEvent("renewal", "provision", outcome, o.now().Sub(start), metadata))
}
