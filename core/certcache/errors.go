package certcache

import "errors"

var (
	// ErrCacheMiss is returned when a domain has no cached certificate and
	// no fallback store holds one either.
	ErrCacheMiss = errors.New("certcache: cache miss")

	// ErrInvalidCertificate is returned when certificate PEM cannot be parsed.
	ErrInvalidCertificate = errors.New("certcache: invalid certificate")

	// ErrInvalidPrivateKey is returned when private key PEM cannot be parsed
	// or does not match the certificate.
	ErrInvalidPrivateKey = errors.New("certcache: invalid private key")
)
