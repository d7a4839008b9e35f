package server

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSelector struct{}

func (staticSelector) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return nil, nil
}

func newTestServer(t *testing.T, challenge http.Handler) *Server {
	t.Helper()
	srv, err := New(Config{HTTPAddr: ":0", HTTPSAddr: ":0"}, challenge, staticSelector{}, slog.Default())
	require.NoError(t, err)
	return srv
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil, staticSelector{}, nil)
	assert.Error(t, err)

	_, err = New(Config{}, http.NotFoundHandler(), nil, nil)
	assert.Error(t, err)
}

func TestHTTPHandlerRoutesChallenges(t *testing.T) {
	challenge := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("token-response"))
	})
	srv := newTestServer(t, challenge)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/.well-known/acme-challenge/token", nil)
	rec := httptest.NewRecorder()
	srv.HTTPHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-response", rec.Body.String())
}

func TestHTTPHandlerRedirectsToHTTPS(t *testing.T) {
	srv := newTestServer(t, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "http://example.com/dashboard?tab=certs", nil)
	rec := httptest.NewRecorder()
	srv.HTTPHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/dashboard?tab=certs", rec.Header().Get("Location"))
}

func TestShutdownBeforeRunIsNoop(t *testing.T) {
	srv := newTestServer(t, http.NotFoundHandler())
	assert.NoError(t, srv.Shutdown(t.Context()))
}
