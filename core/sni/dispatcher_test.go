package sni_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/certward/core/certcache"
	"github.com/dmitrymomot/certward/core/sni"
)

type staticBootstrap struct {
	cert *tls.Certificate
	err  error
}

func (b *staticBootstrap) Certificate() (*tls.Certificate, error) {
	return b.cert, b.err
}

func testKeyPair(t *testing.T, domain string) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func hello(serverName string) *tls.ClientHelloInfo {
	return &tls.ClientHelloInfo{ServerName: serverName}
}

func newBootstrap(t *testing.T) *staticBootstrap {
	t.Helper()
	certPEM, keyPEM := testKeyPair(t, "localhost")
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return &staticBootstrap{cert: &pair}
}

func TestGetCertificateExactMatch(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	certPEM, keyPEM := testKeyPair(t, "example.com")
	record, err := cache.Put("example.com", certPEM, keyPEM)
	require.NoError(t, err)

	d := sni.New(cache, newBootstrap(t), []string{"example.com"})

	cert, err := d.GetCertificate(hello("example.com"))
	require.NoError(t, err)
	assert.Same(t, record.Certificate, cert)

	// Hostname matching is case-insensitive and ignores a trailing dot.
	cert, err = d.GetCertificate(hello("EXAMPLE.com."))
	require.NoError(t, err)
	assert.Same(t, record.Certificate, cert)
}

func TestGetCertificateSubdomainServesParent(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	certPEM, keyPEM := testKeyPair(t, "example.com")
	record, err := cache.Put("example.com", certPEM, keyPEM)
	require.NoError(t, err)

	d := sni.New(cache, newBootstrap(t), []string{"example.com"})

	cert, err := d.GetCertificate(hello("app.example.com"))
	require.NoError(t, err)
	assert.Same(t, record.Certificate, cert)

	// A lookalike suffix without the dot boundary is not a subdomain.
	cert, err = d.GetCertificate(hello("notexample.com"))
	require.NoError(t, err)
	assert.Nil(t, cert)
}

func TestGetCertificateBootstrapFallback(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	bootstrap := newBootstrap(t)
	d := sni.New(cache, bootstrap, []string{"example.com"})

	// Managed domain with no material yet serves the bootstrap cert.
	cert, err := d.GetCertificate(hello("example.com"))
	require.NoError(t, err)
	assert.Same(t, bootstrap.cert, cert)
}

func TestGetCertificateUnmanaged(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	d := sni.New(cache, newBootstrap(t), []string{"example.com"})

	cert, err := d.GetCertificate(hello("other.org"))
	require.NoError(t, err)
	assert.Nil(t, cert)

	// Empty SNI falls through to the default certificate too.
	cert, err = d.GetCertificate(hello(""))
	require.NoError(t, err)
	assert.Nil(t, cert)
}

func TestGetCertificateBootstrapFailureIsNotFatal(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	bootstrap := &staticBootstrap{err: errors.New("no bootstrap material")}
	d := sni.New(cache, bootstrap, []string{"example.com"})

	cert, err := d.GetCertificate(hello("example.com"))
	require.NoError(t, err)
	assert.Nil(t, cert)
}

func TestAddRemove(t *testing.T) {
	cache := certcache.New()
	defer cache.Close()

	d := sni.New(cache, newBootstrap(t), nil)
	assert.False(t, d.Managed("example.com"))

	d.Add("Example.COM")
	assert.True(t, d.Managed("example.com"))
	assert.True(t, d.Managed("app.example.com"))
	assert.ElementsMatch(t, []string{"example.com"}, d.Domains())

	d.Remove("example.com")
	assert.False(t, d.Managed("example.com"))
}
