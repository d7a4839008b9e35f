package acme

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const accountKeyBits = 2048

// loadOrCreateAccountKey returns the persisted ACME account key, generating
// an RSA-2048 key on first use. The key identifies the account for the
// lifetime of the CA environment and is never rotated automatically.
func loadOrCreateAccountKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseAccountKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read account key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, accountKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create account key directory: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	// Atomic rename tolerates two processes racing on first boot; either
	// key is an equally valid fresh account key.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write account key: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("save account key: %w", err)
	}

	return key, nil
}

func parseAccountKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("account key is not PEM encoded")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if pkcs8Err != nil {
		return nil, fmt.Errorf("parse account key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("account key is not an RSA key")
	}
	return rsaKey, nil
}
