package acme

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// base64url without padding, as used throughout RFC 8555.
func base64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// jsonWebKey is the RSA public key in JWK form (RFC 7517).
type jsonWebKey struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type protectedHeader struct {
	Alg   string      `json:"alg"`
	JWK   *jsonWebKey `json:"jwk,omitempty"`
	Kid   string      `json:"kid,omitempty"`
	Nonce string      `json:"nonce"`
	URL   string      `json:"url"`
}

type jwsEnvelope struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// signer produces the RS256 JWS envelopes authenticating every ACME request.
// Until the account is registered it embeds the full JWK in the protected
// header; once kid is set (the account URL) it switches to kid form.
type signer struct {
	key *rsa.PrivateKey
	kid string
}

func (s *signer) publicJWK() jsonWebKey {
	exp := make([]byte, 4)
	binary.BigEndian.PutUint32(exp, uint32(s.key.PublicKey.E))
	return jsonWebKey{
		Kty: "RSA",
		N:   base64url(s.key.PublicKey.N.Bytes()),
		E:   base64url(bytes.TrimLeft(exp, "\x00")),
	}
}

// thumbprint is the SHA-256 hash of the canonical JWK serialization
// (RFC 7638): members in lexicographic order, no whitespace. The JSON is
// assembled by hand because the hash is sensitive to byte-level layout and
// must not depend on struct field order.
func (s *signer) thumbprint() string {
	jwk := s.publicJWK()
	canonical := fmt.Sprintf(`{"e":%q,"kty":%q,"n":%q}`, jwk.E, jwk.Kty, jwk.N)
	sum := sha256.Sum256([]byte(canonical))
	return base64url(sum[:])
}

// keyAuthorization binds a challenge token to this account key.
func (s *signer) keyAuthorization(token string) string {
	return token + "." + s.thumbprint()
}

// sign wraps payload in a JWS envelope for the given target URL and nonce.
// A nil payload produces the empty payload of a POST-as-GET request.
func (s *signer) sign(url, nonce string, payload []byte) ([]byte, error) {
	header := protectedHeader{
		Alg:   "RS256",
		Nonce: nonce,
		URL:   url,
	}
	if s.kid != "" {
		header.Kid = s.kid
	} else {
		jwk := s.publicJWK()
		header.JWK = &jwk
	}

	protectedJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	protected64 := base64url(protectedJSON)
	var payload64 string
	if len(payload) > 0 {
		payload64 = base64url(payload)
	}

	digest := sha256.Sum256([]byte(protected64 + "." + payload64))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, err
	}

	return json.Marshal(jwsEnvelope{
		Protected: protected64,
		Payload:   payload64,
		Signature: base64url(signature),
	})
}
