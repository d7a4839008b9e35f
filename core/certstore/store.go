package certstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no certificate material exists for a domain.
var ErrNotFound = errors.New("certificate not found")

// Store is the persistent certificate store contract. Certificates and keys
// are always written as a pair; a successful Write must be durable before it
// returns. The storage medium is the implementation's concern.
type Store interface {
	// Read returns the PEM-encoded certificate chain and private key for a
	// domain, or ErrNotFound.
	Read(ctx context.Context, domain string) (certPEM, keyPEM []byte, err error)

	// Write persists the PEM pair for a domain, replacing any previous pair.
	Write(ctx context.Context, domain string, certPEM, keyPEM []byte) error
}
