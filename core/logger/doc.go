// Package logger provides structured logging built on Go's standard slog
// package, with a small factory and attribute helpers tuned for certificate
// lifecycle logging.
//
// Create loggers using the factory function with functional options:
//
//	log := logger.New(
//		logger.WithProduction("certward"),
//	)
//
//	log.Info("certificate issued",
//		logger.Component("acme"),
//		logger.Domain("example.com"),
//		logger.ExpiresAt(expiry),
//	)
//
// Attribute helpers are nil-safe: logger.Error(nil) produces an empty
// attribute, so call sites never need explicit nil checks.
package logger
