package certstore_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/certward/core/certstore"
)

// testKeyPair generates a self-signed PEM pair for a domain.
func testKeyPair(t *testing.T, domain string) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func TestFSRoundTrip(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)

	certPEM, keyPEM := testKeyPair(t, "example.com")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "example.com", certPEM, keyPEM))

	gotCert, gotKey, err := store.Read(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, certPEM, gotCert)
	assert.Equal(t, keyPEM, gotKey)
}

func TestFSReadMissing(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Read(context.Background(), "absent.example.com")
	assert.ErrorIs(t, err, certstore.ErrNotFound)
}

func TestFSExistsAndDelete(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)

	certPEM, keyPEM := testKeyPair(t, "example.com")
	ctx := context.Background()

	assert.False(t, store.Exists("example.com"))
	require.NoError(t, store.Write(ctx, "example.com", certPEM, keyPEM))
	assert.True(t, store.Exists("example.com"))

	require.NoError(t, store.Delete("example.com"))
	assert.False(t, store.Exists("example.com"))

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete("example.com"))
}

func TestFSList(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)

	certPEM, keyPEM := testKeyPair(t, "example.com")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "a.example.com", certPEM, keyPEM))
	require.NoError(t, store.Write(ctx, "b.example.com", certPEM, keyPEM))

	domains, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, domains)
}
