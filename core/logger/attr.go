package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers use the empty Attr pattern for nil safety, so call sites
// can write log.Info("msg", logger.Error(err)) without explicit nil checks.

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component identifies the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Domain identifies the hostname an operation concerns.
func Domain(domain string) slog.Attr {
	return slog.String("domain", domain)
}

// Stage identifies the lifecycle stage within a provisioning flow.
func Stage(stage string) slog.Attr {
	return slog.String("stage", stage)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed calculates and logs the duration since the start time.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// ExpiresAt records a certificate expiry timestamp.
func ExpiresAt(t time.Time) slog.Attr {
	return slog.Time("expires_at", t)
}
