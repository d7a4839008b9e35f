package certstore

import (
	"bytes"
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// AutocertCache adapts an autocert.Cache (for example autocert.DirCache) to
// the Store contract. autocert keeps one blob per domain with the private
// key PEM block first and the certificate chain after it; the adapter splits
// and joins that format so material provisioned by x/crypto autocert can be
// consumed directly, and vice versa.
type AutocertCache struct {
	cache autocert.Cache
}

// NewAutocertCache wraps an autocert.Cache as a certificate store.
func NewAutocertCache(cache autocert.Cache) *AutocertCache {
	return &AutocertCache{cache: cache}
}

// Read implements Store.
func (s *AutocertCache) Read(ctx context.Context, domain string) ([]byte, []byte, error) {
	data, err := s.cache.Get(ctx, domain)
	if err != nil {
		if errors.Is(err, autocert.ErrCacheMiss) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("autocert cache get %s: %w", domain, err)
	}

	certPEM, keyPEM, err := splitBundle(data)
	if err != nil {
		return nil, nil, fmt.Errorf("autocert cache entry %s: %w", domain, err)
	}
	return certPEM, keyPEM, nil
}

// Write implements Store.
func (s *AutocertCache) Write(ctx context.Context, domain string, certPEM, keyPEM []byte) error {
	var buf bytes.Buffer
	buf.Write(keyPEM)
	if len(keyPEM) > 0 && keyPEM[len(keyPEM)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(certPEM)

	if err := s.cache.Put(ctx, domain, buf.Bytes()); err != nil {
		return fmt.Errorf("autocert cache put %s: %w", domain, err)
	}
	return nil
}

func splitBundle(bundle []byte) (certPEM, keyPEM []byte, err error) {
	var certBuf, keyBuf bytes.Buffer
	for {
		var block *pem.Block
		block, bundle = pem.Decode(bundle)
		if block == nil {
			break
		}
		switch {
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if err := pem.Encode(&keyBuf, block); err != nil {
				return nil, nil, err
			}
		case block.Type == "CERTIFICATE":
			if err := pem.Encode(&certBuf, block); err != nil {
				return nil, nil, err
			}
		}
	}

	if certBuf.Len() == 0 || keyBuf.Len() == 0 {
		return nil, nil, errors.New("incomplete certificate bundle")
	}
	return certBuf.Bytes(), keyBuf.Bytes(), nil
}
