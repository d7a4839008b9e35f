package certstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	certExt = ".crt"
	keyExt  = ".key"
)

// FS stores certificate pairs as <domain>.crt / <domain>.key files in a
// single directory. Writes go through a temp file and an atomic rename so a
// crash never leaves a torn pair behind.
type FS struct {
	dir string
}

// NewFS creates the directory if missing and returns a filesystem store.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}
	return &FS{dir: dir}, nil
}

// Read implements Store.
func (s *FS) Read(_ context.Context, domain string) ([]byte, []byte, error) {
	certPEM, err := os.ReadFile(s.certPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("read certificate for %s: %w", domain, err)
	}

	keyPEM, err := os.ReadFile(s.keyPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			// A certificate without its key must not be served.
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("read private key for %s: %w", domain, err)
	}

	return certPEM, keyPEM, nil
}

// Write implements Store.
func (s *FS) Write(_ context.Context, domain string, certPEM, keyPEM []byte) error {
	if err := writeAtomic(s.keyPath(domain), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write private key for %s: %w", domain, err)
	}
	if err := writeAtomic(s.certPath(domain), certPEM, 0o600); err != nil {
		return fmt.Errorf("write certificate for %s: %w", domain, err)
	}
	return nil
}

// Exists reports whether a complete pair is stored for the domain.
func (s *FS) Exists(domain string) bool {
	if _, err := os.Stat(s.certPath(domain)); err != nil {
		return false
	}
	_, err := os.Stat(s.keyPath(domain))
	return err == nil
}

// Delete removes the stored pair for a domain. Missing files are not an error.
func (s *FS) Delete(domain string) error {
	for _, path := range []string{s.certPath(domain), s.keyPath(domain)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete certificate for %s: %w", domain, err)
		}
	}
	return nil
}

// List returns the domains that have a certificate file in the store.
func (s *FS) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}

	var domains []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, certExt) {
			continue
		}
		domains = append(domains, strings.TrimSuffix(name, certExt))
	}
	return domains, nil
}

// Dir returns the storage directory path.
func (s *FS) Dir() string {
	return s.dir
}

func (s *FS) certPath(domain string) string {
	return filepath.Join(s.dir, safeDomain(domain)+certExt)
}

func (s *FS) keyPath(domain string) string {
	return filepath.Join(s.dir, safeDomain(domain)+keyExt)
}

// safeDomain keeps domain-derived filenames inside the store directory.
func safeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.ReplaceAll(domain, "/", "_")
	return strings.ReplaceAll(domain, string(filepath.Separator), "_")
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
