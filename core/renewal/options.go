package renewal

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/certward/core/telemetry"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDomainSource adds a source of dynamically registered domains,
// swept on the tenant schedule.
func WithDomainSource(source DomainSource) Option {
	return func(o *Orchestrator) {
		o.source = source
	}
}

// WithRegistrar forwards newly discovered domains to the TLS layer.
func WithRegistrar(registrar Registrar) Option {
	return func(o *Orchestrator) {
		o.registrar = registrar
	}
}

// WithInitialDelay overrides the pause between startup and the first
// provisioning sweep.
func WithInitialDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		if delay >= 0 {
			o.initialDelay = delay
		}
	}
}

// WithPrimaryInterval overrides the primary-domain sweep interval.
func WithPrimaryInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.primaryInterval = interval
		}
	}
}

// WithTenantInterval overrides the tenant-domain sweep interval.
func WithTenantInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.tenantInterval = interval
		}
	}
}

// WithRetryDelay overrides how long a failed domain waits before the next
// attempt.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithRenewBefore overrides the remaining-validity window that marks a
// certificate as expiring.
func WithRenewBefore(window time.Duration) Option {
	return func(o *Orchestrator) {
		if window > 0 {
			o.renewBefore = window
		}
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSink routes provisioning outcome events to a telemetry sink.
func WithSink(sink telemetry.Sink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// withClock injects a deterministic clock for tests.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}
