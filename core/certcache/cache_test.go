package certcache_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/certward/core/certcache"
	"github.com/dmitrymomot/certward/core/certstore"
)

func testKeyPair(t *testing.T, domain string, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func TestPutAndGet(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	notAfter := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	certPEM, keyPEM := testKeyPair(t, "example.com", notAfter)

	record, err := cache.Put("Example.COM", certPEM, keyPEM)
	require.NoError(t, err)
	assert.Equal(t, "example.com", record.Domain)
	assert.NotNil(t, record.Certificate)
	assert.NotNil(t, record.Leaf)
	assert.True(t, record.ExpiresAt.Equal(notAfter.UTC()) || record.ExpiresAt.Equal(notAfter))

	// Lookups are case-insensitive.
	got, err := cache.Get(context.Background(), "EXAMPLE.com")
	require.NoError(t, err)
	assert.Same(t, record, got)
}

func TestGetMiss(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	_, err := cache.Get(context.Background(), "missing.example.com")
	assert.ErrorIs(t, err, certcache.ErrCacheMiss)
}

func TestPutInvalidPEM(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	certPEM, keyPEM := testKeyPair(t, "example.com", time.Now().Add(time.Hour))

	_, err := cache.Put("example.com", []byte("garbage"), keyPEM)
	assert.ErrorIs(t, err, certcache.ErrInvalidCertificate)

	_, err = cache.Put("example.com", certPEM, []byte("garbage"))
	assert.ErrorIs(t, err, certcache.ErrInvalidPrivateKey)

	assert.Equal(t, 0, cache.Len())
}

func TestPutMismatchedKey(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	certPEM, _ := testKeyPair(t, "example.com", time.Now().Add(time.Hour))
	_, otherKey := testKeyPair(t, "other.com", time.Now().Add(time.Hour))

	_, err := cache.Put("example.com", certPEM, otherKey)
	assert.ErrorIs(t, err, certcache.ErrInvalidPrivateKey)
}

func TestFallbackPromotesIntoCache(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)

	certPEM, keyPEM := testKeyPair(t, "stored.example.com", time.Now().Add(time.Hour))
	require.NoError(t, store.Write(context.Background(), "stored.example.com", certPEM, keyPEM))

	cache := certcache.New(certcache.WithFallback(store))
	defer cache.Close()

	record, err := cache.Get(context.Background(), "stored.example.com")
	require.NoError(t, err)
	assert.Equal(t, certPEM, record.CertificatePEM)
	assert.True(t, cache.Contains("stored.example.com"))

	// Absent domains still miss.
	_, err = cache.Get(context.Background(), "absent.example.com")
	assert.ErrorIs(t, err, certcache.ErrCacheMiss)
}

func TestFallbackCorruptEntryIsAMiss(t *testing.T) {
	store, err := certstore.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "bad.example.com", []byte("not a cert"), []byte("not a key")))

	cache := certcache.New(certcache.WithFallback(store))
	defer cache.Close()

	_, err = cache.Get(context.Background(), "bad.example.com")
	assert.ErrorIs(t, err, certcache.ErrCacheMiss)
}

func TestBatchEviction(t *testing.T) {
	cache := certcache.New(certcache.WithMaxEntries(10))
	defer cache.Close()

	notAfter := time.Now().Add(time.Hour)
	certPEM, keyPEM := testKeyPair(t, "shared.example.com", notAfter)

	for i := 0; i < 10; i++ {
		_, err := cache.Put(fmt.Sprintf("d%d.example.com", i), certPEM, keyPEM)
		require.NoError(t, err)
	}
	require.Equal(t, 10, cache.Len())

	// Touch the first entry so it survives the eviction batch.
	_, err := cache.Get(context.Background(), "d0.example.com")
	require.NoError(t, err)

	// The 11th entry pushes the cache over its bound; eviction drops down
	// to max minus a tenth of max in one batch.
	_, err = cache.Put("d10.example.com", certPEM, keyPEM)
	require.NoError(t, err)

	assert.Equal(t, 9, cache.Len())
	assert.True(t, cache.Contains("d0.example.com"))
	assert.True(t, cache.Contains("d10.example.com"))
}

func TestDelete(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	certPEM, keyPEM := testKeyPair(t, "example.com", time.Now().Add(time.Hour))
	_, err := cache.Put("example.com", certPEM, keyPEM)
	require.NoError(t, err)

	cache.Delete("EXAMPLE.COM")
	assert.False(t, cache.Contains("example.com"))

	// Deleting an absent domain is a no-op.
	cache.Delete("example.com")
}

func TestStats(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	assert.Equal(t, certcache.Stats{}, cache.Stats())

	certPEM, keyPEM := testKeyPair(t, "example.com", time.Now().Add(time.Hour))
	_, err := cache.Put("example.com", certPEM, keyPEM)
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(len(certPEM)+len(keyPEM)), stats.MemoryBytes)
}
