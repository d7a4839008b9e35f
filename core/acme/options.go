package acme

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/certward/core/telemetry"
)

// Option configures a Client during initialization.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for all CA traffic.
// Primarily useful for tests and for custom proxy/TLS setups.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger. If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSink sets the telemetry sink receiving per-stage events.
func WithSink(sink telemetry.Sink) Option {
	return func(c *Client) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithPollInterval overrides the delay between challenge/order status polls
// (default 2s). The same interval applies to both polling phases.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval >= 0 {
			c.pollInterval = interval
		}
	}
}

// WithPollAttempts overrides the poll attempt ceiling (default 10).
func WithPollAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

// WithSettleDelay overrides the pause between publishing a challenge
// response and telling the CA to fetch it (default 2s).
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Client) {
		if delay >= 0 {
			c.settleDelay = delay
		}
	}
}
