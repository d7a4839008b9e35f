package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds listener addresses and shutdown behavior.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":80"`
	HTTPSAddr       string        `env:"HTTPS_ADDR" envDefault:":443"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CertificateSelector picks certificate material per TLS handshake.
// Satisfied by the SNI dispatcher.
type CertificateSelector interface {
	GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error)
}

// challengePath is the HTTP-01 well-known prefix routed to the challenge
// handler instead of the HTTPS redirect.
const challengePath = "/.well-known/acme-challenge/"

// Server runs the paired HTTP and HTTPS listeners. The HTTP side answers
// ACME HTTP-01 challenges and redirects everything else to HTTPS; the
// HTTPS side serves the application with per-handshake certificate
// selection.
type Server struct {
	mu          sync.Mutex
	cfg         Config
	challenge   http.Handler
	selector    CertificateSelector
	logger      *slog.Logger
	httpServer  *http.Server
	httpsServer *http.Server
	running     bool
}

// New builds a server. The challenge handler and certificate selector
// are required; the application handler is passed to Run.
func New(cfg Config, challenge http.Handler, selector CertificateSelector, logger *slog.Logger) (*Server, error) {
	if challenge == nil {
		return nil, errors.New("server: challenge handler is required")
	}
	if selector == nil {
		return nil, errors.New("server: certificate selector is required")
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":80"
	}
	if cfg.HTTPSAddr == "" {
		cfg.HTTPSAddr = ":443"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:       cfg,
		challenge: challenge,
		selector:  selector,
		logger:    logger,
	}, nil
}

// Run starts both listeners and blocks until the context is canceled or
// a listener fails. Shutdown is graceful within the configured timeout.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true

	s.httpServer = &http.Server{
		Addr:           s.cfg.HTTPAddr,
		Handler:        s.HTTPHandler(),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: http.DefaultMaxHeaderBytes,
	}
	s.httpsServer = &http.Server{
		Addr:    s.cfg.HTTPSAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			GetCertificate: s.selector.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: http.DefaultMaxHeaderBytes,
	}
	s.mu.Unlock()

	errCh := make(chan error, 2)

	go func() {
		s.logger.InfoContext(ctx, "starting HTTP server", slog.String("addr", s.cfg.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		s.logger.InfoContext(ctx, "starting HTTPS server", slog.String("addr", s.cfg.HTTPSAddr))
		if err := s.httpsServer.ListenAndServeTLS("", ""); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPS server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// HTTPHandler routes HTTP-01 challenge requests to the challenge handler
// and redirects everything else to HTTPS.
func (s *Server) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, challengePath) {
			s.challenge.ServeHTTP(w, r)
			return
		}
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
