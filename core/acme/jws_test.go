package acme

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &signer{key: key}
}

func TestThumbprintDeterministic(t *testing.T) {
	sgn := testSigner(t)

	first := sgn.thumbprint()
	second := sgn.thumbprint()
	assert.Equal(t, first, second)

	// base64url SHA-256 without padding is always 43 characters.
	assert.Len(t, first, 43)
	assert.NotContains(t, first, "=")

	// A different key yields a different thumbprint.
	other := testSigner(t)
	assert.NotEqual(t, first, other.thumbprint())
}

func TestThumbprintCanonicalForm(t *testing.T) {
	sgn := testSigner(t)
	jwk := sgn.publicJWK()

	// Recompute from the canonical serialization by hand: lexicographic
	// member order, no whitespace.
	canonical := `{"e":"` + jwk.E + `","kty":"RSA","n":"` + jwk.N + `"}`
	sum := sha256.Sum256([]byte(canonical))
	expected := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.Equal(t, expected, sgn.thumbprint())
}

func TestKeyAuthorizationFormat(t *testing.T) {
	sgn := testSigner(t)
	keyAuth := sgn.keyAuthorization("token123")
	assert.Equal(t, "token123."+sgn.thumbprint(), keyAuth)
}

func TestSignWithJWKHeader(t *testing.T) {
	sgn := testSigner(t)

	envelope, err := sgn.sign("https://ca.example.com/new-account", "nonce-1", []byte(`{"termsOfServiceAgreed":true}`))
	require.NoError(t, err)

	var jws jwsEnvelope
	require.NoError(t, json.Unmarshal(envelope, &jws))

	protectedJSON, err := base64.RawURLEncoding.DecodeString(jws.Protected)
	require.NoError(t, err)

	var header protectedHeader
	require.NoError(t, json.Unmarshal(protectedJSON, &header))
	assert.Equal(t, "RS256", header.Alg)
	assert.Equal(t, "nonce-1", header.Nonce)
	assert.Equal(t, "https://ca.example.com/new-account", header.URL)
	assert.Empty(t, header.Kid)
	require.NotNil(t, header.JWK)
	assert.Equal(t, "RSA", header.JWK.Kty)

	// Signature verifies over base64url(protected) || "." || base64url(payload).
	digest := sha256.Sum256([]byte(jws.Protected + "." + jws.Payload))
	signature, err := base64.RawURLEncoding.DecodeString(jws.Signature)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&sgn.key.PublicKey, crypto.SHA256, digest[:], signature))
}

func TestSignWithKidHeader(t *testing.T) {
	sgn := testSigner(t)
	sgn.kid = "https://ca.example.com/acct/42"

	envelope, err := sgn.sign("https://ca.example.com/order", "nonce-2", nil)
	require.NoError(t, err)

	var jws jwsEnvelope
	require.NoError(t, json.Unmarshal(envelope, &jws))

	// POST-as-GET carries an empty payload.
	assert.Empty(t, jws.Payload)

	protectedJSON, err := base64.RawURLEncoding.DecodeString(jws.Protected)
	require.NoError(t, err)

	var header protectedHeader
	require.NoError(t, json.Unmarshal(protectedJSON, &header))
	assert.Equal(t, "https://ca.example.com/acct/42", header.Kid)
	assert.Nil(t, header.JWK)
}

func TestGenerateCSR(t *testing.T) {
	csrDER, keyPEM, err := generateCSR("example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, keyPEM)

	csr, err := x509.ParseCertificateRequest(csrDER)
	require.NoError(t, err)
	assert.Equal(t, "example.com", csr.Subject.CommonName)
	assert.Equal(t, []string{"example.com"}, csr.DNSNames)
	assert.NoError(t, csr.CheckSignature())
}
