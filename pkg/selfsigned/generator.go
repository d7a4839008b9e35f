package selfsigned

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	certFileName = "bootstrap.crt"
	keyFileName  = "bootstrap.key"

	keyBits  = 2048
	validity = 365 * 24 * time.Hour
)

// Generator produces the self-signed bootstrap certificate served while real
// certificate material is not ready yet. Generation happens at most once;
// existing files at the fixed paths are reused untouched.
type Generator struct {
	certPath string
	keyPath  string

	mu     sync.Mutex
	cached *tls.Certificate
}

// New creates a generator writing into dir.
func New(dir string) *Generator {
	return &Generator{
		certPath: filepath.Join(dir, certFileName),
		keyPath:  filepath.Join(dir, keyFileName),
	}
}

// Ensure guarantees the bootstrap pair exists and returns its paths. The
// call is idempotent: if both files are already present they are returned
// unchanged, key material included.
func (g *Generator) Ensure() (certPath, keyPath string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.exists() {
		return g.certPath, g.keyPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.certPath), 0o700); err != nil {
		return "", "", fmt.Errorf("create bootstrap directory: %w", err)
	}
	if err := g.generate(); err != nil {
		return "", "", err
	}

	return g.certPath, g.keyPath, nil
}

// Certificate loads the bootstrap pair, generating it first if needed. The
// parsed certificate is cached for the handshake hot path.
func (g *Generator) Certificate() (*tls.Certificate, error) {
	if _, _, err := g.Ensure(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil {
		return g.cached, nil
	}

	cert, err := tls.LoadX509KeyPair(g.certPath, g.keyPath)
	if err != nil {
		return nil, fmt.Errorf("load bootstrap certificate: %w", err)
	}
	g.cached = &cert

	return g.cached, nil
}

func (g *Generator) exists() bool {
	if _, err := os.Stat(g.certPath); err != nil {
		return false
	}
	_, err := os.Stat(g.keyPath)
	return err == nil
}

func (g *Generator) generate() error {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generate bootstrap key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create bootstrap certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	// Temp file plus rename tolerates two processes racing on first boot:
	// the last writer wins with an equivalent pair.
	if err := writeAtomic(g.keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write bootstrap key: %w", err)
	}
	if err := writeAtomic(g.certPath, certPEM, 0o600); err != nil {
		return fmt.Errorf("write bootstrap certificate: %w", err)
	}

	return nil
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
