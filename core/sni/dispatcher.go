package sni

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"
	"sync"

	"github.com/dmitrymomot/certward/core/certcache"
)

// BootstrapProvider supplies the self-signed fallback certificate served
// while a managed domain has no real certificate yet.
type BootstrapProvider interface {
	Certificate() (*tls.Certificate, error)
}

// Dispatcher resolves certificates for incoming TLS handshakes. It holds
// the set of managed domains and consults the certificate cache for
// material; managed domains without material fall back to the bootstrap
// certificate so the listener never refuses a handshake while issuance is
// still in flight.
type Dispatcher struct {
	mu      sync.RWMutex
	domains map[string]struct{}

	cache     *certcache.Cache
	bootstrap BootstrapProvider
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a dispatcher managing the given domains. More domains can be
// registered later with Add.
func New(cache *certcache.Cache, bootstrap BootstrapProvider, domains []string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		domains:   make(map[string]struct{}, len(domains)),
		cache:     cache,
		bootstrap: bootstrap,
		logger:    slog.Default(),
	}
	for _, domain := range domains {
		d.domains[normalize(domain)] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add registers a domain so future handshakes for it (and its subdomains)
// resolve to real certificate material.
func (d *Dispatcher) Add(domain string) {
	d.mu.Lock()
	d.domains[normalize(domain)] = struct{}{}
	d.mu.Unlock()
}

// Remove unregisters a domain. Handshakes for it fall through to the TLS
// stack's default certificate afterwards.
func (d *Dispatcher) Remove(domain string) {
	d.mu.Lock()
	delete(d.domains, normalize(domain))
	d.mu.Unlock()
}

// Managed reports whether the hostname maps to a managed domain, either
// exactly or as a subdomain.
func (d *Dispatcher) Managed(hostname string) bool {
	return d.resolve(normalize(hostname)) != ""
}

// Domains returns a snapshot of the managed domain set.
func (d *Dispatcher) Domains() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.domains))
	for domain := range d.domains {
		out = append(out, domain)
	}
	return out
}

// GetCertificate selects certificate material for a TLS handshake. It is
// suitable as a tls.Config.GetCertificate callback.
//
// Resolution order: exact match against the managed set, then subdomain of
// a managed domain (served the parent's certificate), then the bootstrap
// certificate for managed names whose material is not ready. Unmanaged
// hostnames return (nil, nil) so the TLS stack falls back to its
// statically configured certificate. The method never returns an error
// and never performs network I/O.
func (d *Dispatcher) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	hostname := normalize(hello.ServerName)
	target := d.resolve(hostname)
	if target == "" {
		return nil, nil
	}

	ctx := hello.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	record, err := d.cache.Get(ctx, target)
	if err == nil {
		return record.Certificate, nil
	}

	cert, err := d.bootstrap.Certificate()
	if err != nil {
		d.logger.Error("bootstrap certificate unavailable",
			slog.String("hostname", hostname), slog.Any("error", err))
		return nil, nil
	}
	d.logger.Debug("serving bootstrap certificate",
		slog.String("hostname", hostname), slog.String("domain", target))
	return cert, nil
}

// resolve maps a hostname to the managed domain whose certificate should
// serve it, or "" when unmanaged.
func (d *Dispatcher) resolve(hostname string) string {
	if hostname == "" {
		return ""
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.domains[hostname]; ok {
		return hostname
	}
	for domain := range d.domains {
		if strings.HasSuffix(hostname, "."+domain) {
			return domain
		}
	}
	return ""
}

func normalize(hostname string) string {
	return strings.ToLower(strings.TrimSuffix(hostname, "."))
}
