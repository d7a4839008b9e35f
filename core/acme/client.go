package acme

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/certward/core/telemetry"
)

// Well-known Let's Encrypt directory endpoints.
const (
	LetsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
	LetsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultPollAttempts   = 10
	defaultSettleDelay    = 2 * time.Second

	domainKeyBits = 2048

	// fallbackValidity is assumed when the downloaded leaf cannot be
	// parsed; certificates from public CAs are issued for 90 days.
	fallbackValidity = 90 * 24 * time.Hour
)

// Config holds the client's environment-driven settings. Enabled gates the
// whole flow: when false, Provision short-circuits before any network call.
type Config struct {
	Enabled        bool          `env:"ACME_ENABLED" envDefault:"false"`
	DirectoryURL   string        `env:"ACME_DIRECTORY_URL" envDefault:"https://acme-v02.api.letsencrypt.org/directory"`
	Email          string        `env:"ACME_EMAIL"`
	AccountKeyPath string        `env:"ACME_ACCOUNT_KEY_PATH" envDefault:"certs/account.key"`
	RequestTimeout time.Duration `env:"ACME_REQUEST_TIMEOUT" envDefault:"30s"`
}

// ChallengeStore publishes http-01 key authorizations for the CA to fetch.
// The challenge store in core/challenge satisfies this.
type ChallengeStore interface {
	Put(token, response string)
	Delete(token string)
}

// Certificate is the result of a successful provisioning run.
type Certificate struct {
	Domain         string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	ExpiresAt      time.Time
}

// Client drives the RFC 8555 issuance state machine against a single CA
// directory using http-01 validation. A Client may provision different
// domains concurrently; attempts for the same domain are serialized so two
// runs never publish conflicting responses under one token namespace.
type Client struct {
	cfg        Config
	httpClient *http.Client
	store      ChallengeStore
	sink       telemetry.Sink
	logger     *slog.Logger

	pollInterval time.Duration
	pollAttempts int
	settleDelay  time.Duration

	accountMu  sync.Mutex
	accountKey *rsa.PrivateKey

	domainLocks sync.Map // domain -> *sync.Mutex
}

// New creates an ACME client publishing challenges to store.
func New(cfg Config, store ChallengeStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = LetsEncryptProduction
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	c := &Client{
		cfg:          cfg,
		store:        store,
		sink:         telemetry.NoopSink{},
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
		settleDelay:  defaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return c, nil
}

// Provision obtains a fresh certificate for the domain by running the full
// order/authorization/finalize/download flow. There is no retry across
// stages: the first failing stage aborts the run and the caller schedules
// any retry. A run may take tens of seconds.
func (c *Client) Provision(ctx context.Context, domain string) (*Certificate, error) {
	start := time.Now()

	if !c.cfg.Enabled {
		c.emit(ctx, "provision", start, domain, ErrDisabled)
		return nil, ErrDisabled
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrOrder)
	}

	lock := c.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	cert, err := c.provision(ctx, domain)
	c.emit(ctx, "provision", start, domain, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "provisioning failed",
			slog.String("domain", domain), slog.Any("error", err))
		return nil, err
	}

	c.logger.InfoContext(ctx, "certificate provisioned",
		slog.String("domain", domain), slog.Time("expires_at", cert.ExpiresAt))
	return cert, nil
}

func (c *Client) provision(ctx context.Context, domain string) (*Certificate, error) {
	dir, err := c.discoverDirectory(ctx)
	if err != nil {
		return nil, err
	}

	sgn, err := c.registerAccount(ctx, dir)
	if err != nil {
		return nil, err
	}

	run := &flow{client: c, dir: dir, signer: sgn, domain: domain}

	orderURL, order, err := run.createOrder(ctx)
	if err != nil {
		return nil, err
	}

	// The first failing authorization aborts the run; remaining ones are
	// not attempted.
	for _, authzURL := range order.Authorizations {
		if err := run.completeAuthorization(ctx, authzURL); err != nil {
			return nil, err
		}
	}

	certURL, keyPEM, err := run.finalizeOrder(ctx, orderURL)
	if err != nil {
		return nil, err
	}

	certPEM, expiresAt, err := run.downloadCertificate(ctx, certURL)
	if err != nil {
		return nil, err
	}

	return &Certificate{
		Domain:         domain,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		ExpiresAt:      expiresAt,
	}, nil
}

func (c *Client) discoverDirectory(ctx context.Context) (directory, error) {
	start := time.Now()
	var dir directory
	err := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DirectoryURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDirectory, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDirectory, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", ErrDirectory, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
			return fmt.Errorf("%w: decode body: %w", ErrDirectory, err)
		}
		if dir.NewNonce == "" || dir.NewAccount == "" || dir.NewOrder == "" {
			return fmt.Errorf("%w: incomplete directory document", ErrDirectory)
		}
		return nil
	}()
	c.emit(ctx, "directory", start, "", err)
	return dir, err
}

// registerAccount ensures the account key exists and registers (or looks up)
// the account, returning a signer switched to kid form.
func (c *Client) registerAccount(ctx context.Context, dir directory) (*signer, error) {
	start := time.Now()
	sgn, err := func() (*signer, error) {
		key, err := c.ensureAccountKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAccount, err)
		}
		sgn := &signer{key: key}

		payload := newAccountRequest{TermsOfServiceAgreed: true}
		if c.cfg.Email != "" {
			payload.Contact = []string{"mailto:" + c.cfg.Email}
		}

		run := &flow{client: c, dir: dir, signer: sgn}
		resp, _, err := run.post(ctx, dir.NewAccount, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAccount, err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("%w: unexpected status %d", ErrAccount, resp.StatusCode)
		}

		kid := resp.Header.Get("Location")
		if kid == "" {
			return nil, fmt.Errorf("%w: missing account URL", ErrAccount)
		}
		sgn.kid = kid
		return sgn, nil
	}()
	c.emit(ctx, "account", start, "", err)
	return sgn, err
}

func (c *Client) ensureAccountKey() (*rsa.PrivateKey, error) {
	c.accountMu.Lock()
	defer c.accountMu.Unlock()

	if c.accountKey != nil {
		return c.accountKey, nil
	}
	key, err := loadOrCreateAccountKey(c.cfg.AccountKeyPath)
	if err != nil {
		return nil, err
	}
	c.accountKey = key
	return key, nil
}

func (c *Client) domainLock(domain string) *sync.Mutex {
	lock, _ := c.domainLocks.LoadOrStore(domain, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (c *Client) emit(ctx context.Context, stage string, start time.Time, domain string, err error) {
	outcome := telemetry.OutcomeSuccess
	metadata := map[string]any{}
	if domain != "" {
		metadata["domain"] = domain
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrDisabled):
		outcome = telemetry.OutcomeSkipped
	default:
		outcome = telemetry.OutcomeFailure
		metadata["error"] = err.Error()
	}
	c.sink.Emit(ctx, telemetry.NewEvent("acme", stage, outcome, time.Since(start), metadata))
}

// flow carries the per-run state shared by the protocol steps.
type flow struct {
	client *Client
	dir    directory
	signer *signer
	domain string
}

// nonce fetches a fresh anti-replay nonce. Nonces are never reused across
// requests.
func (f *flow) nonce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.dir.NewNonce, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	nonce := resp.Header.Get("Replay-Nonce")
	if nonce == "" {
		return "", fmt.Errorf("no Replay-Nonce header from %s", f.dir.NewNonce)
	}
	return nonce, nil
}

// post sends a JWS-signed request. A nil payload makes it a POST-as-GET.
func (f *flow) post(ctx context.Context, url string, payload any) (*http.Response, []byte, error) {
	return f.postWithAccept(ctx, url, payload, "")
}

func (f *flow) postWithAccept(ctx context.Context, url string, payload any, accept string) (*http.Response, []byte, error) {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
	}

	nonce, err := f.nonce(ctx)
	if err != nil {
		return nil, nil, err
	}

	body, err := f.signer.sign(url, nonce, payloadJSON)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

func (f *flow) createOrder(ctx context.Context) (string, *orderResource, error) {
	start := time.Now()
	orderURL, order, err := func() (string, *orderResource, error) {
		payload := newOrderRequest{
			Identifiers: []identifier{{Type: "dns", Value: f.domain}},
		}
		resp, body, err := f.post(ctx, f.dir.NewOrder, payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrOrder, err)
		}
		if resp.StatusCode != http.StatusCreated {
			return "", nil, fmt.Errorf("%w: %s", ErrOrder, problemDetail(resp.StatusCode, body))
		}

		orderURL := resp.Header.Get("Location")
		if orderURL == "" {
			return "", nil, fmt.Errorf("%w: missing order URL", ErrOrder)
		}

		var order orderResource
		if err := json.Unmarshal(body, &order); err != nil {
			return "", nil, fmt.Errorf("%w: decode body: %w", ErrOrder, err)
		}
		if len(order.Authorizations) == 0 {
			return "", nil, fmt.Errorf("%w: order has no authorizations", ErrOrder)
		}
		return orderURL, &order, nil
	}()
	f.client.emit(ctx, "order", start, f.domain, err)
	return orderURL, order, err
}

// completeAuthorization publishes the http-01 response for one authorization
// and polls it to a terminal state.
func (f *flow) completeAuthorization(ctx context.Context, authzURL string) error {
	start := time.Now()
	err := func() error {
		resp, body, err := f.post(ctx, authzURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAuthorization, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s", ErrAuthorization, problemDetail(resp.StatusCode, body))
		}

		var authz authorizationResource
		if err := json.Unmarshal(body, &authz); err != nil {
			return fmt.Errorf("%w: decode body: %w", ErrAuthorization, err)
		}
		if authz.Status == statusValid {
			return nil
		}

		var chal *challengeResource
		for i := range authz.Challenges {
			if authz.Challenges[i].Type == challengeTypeHTTP01 {
				chal = &authz.Challenges[i]
				break
			}
		}
		if chal == nil {
			return fmt.Errorf("%w: authorization for %s", ErrNoHTTP01Challenge, authz.Identifier.Value)
		}

		f.client.store.Put(chal.Token, f.signer.keyAuthorization(chal.Token))
		defer f.client.store.Delete(chal.Token)

		// Give the response a moment to become visible before inviting
		// the CA to fetch it.
		if err := sleepCtx(ctx, f.client.settleDelay); err != nil {
			return fmt.Errorf("%w: %w", ErrChallenge, err)
		}

		resp, body, err = f.post(ctx, chal.URL, struct{}{})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrChallenge, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s", ErrChallenge, problemDetail(resp.StatusCode, body))
		}

		return f.pollChallenge(ctx, chal.URL)
	}()
	f.client.emit(ctx, "challenge", start, f.domain, err)
	return err
}

func (f *flow) pollChallenge(ctx context.Context, challengeURL string) error {
	for attempt := 0; attempt < f.client.pollAttempts; attempt++ {
		if err := sleepCtx(ctx, f.client.pollInterval); err != nil {
			return fmt.Errorf("%w: %w", ErrChallengeTimeout, err)
		}

		resp, body, err := f.post(ctx, challengeURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrChallenge, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s", ErrChallenge, problemDetail(resp.StatusCode, body))
		}

		var chal challengeResource
		if err := json.Unmarshal(body, &chal); err != nil {
			return fmt.Errorf("%w: decode body: %w", ErrChallenge, err)
		}

		switch chal.Status {
		case statusValid:
			return nil
		case statusPending, statusProcessing:
			continue
		case statusInvalid:
			return fmt.Errorf("%w: %s", ErrChallengeInvalid, chal.Error.String())
		default:
			return fmt.Errorf("%w: unexpected status %q", ErrChallengeTimeout, chal.Status)
		}
	}
	return fmt.Errorf("%w: still pending after %d attempts", ErrChallengeTimeout, f.client.pollAttempts)
}

// finalizeOrder submits the CSR and waits for the order to become valid.
// It returns the certificate URL and the PEM of the freshly generated
// domain key.
func (f *flow) finalizeOrder(ctx context.Context, orderURL string) (string, []byte, error) {
	start := time.Now()
	certURL, keyPEM, err := func() (string, []byte, error) {
		resp, body, err := f.post(ctx, orderURL, nil)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrFinalize, err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", nil, fmt.Errorf("%w: %s", ErrFinalize, problemDetail(resp.StatusCode, body))
		}

		var order orderResource
		if err := json.Unmarshal(body, &order); err != nil {
			return "", nil, fmt.Errorf("%w: decode body: %w", ErrFinalize, err)
		}
		if order.Finalize == "" {
			return "", nil, fmt.Errorf("%w: order has no finalize URL", ErrFinalize)
		}

		csrDER, keyPEM, err := generateCSR(f.domain)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrFinalize, err)
		}

		resp, body, err = f.post(ctx, order.Finalize, finalizeRequest{CSR: base64url(csrDER)})
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrFinalize, err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", nil, fmt.Errorf("%w: %s", ErrFinalize, problemDetail(resp.StatusCode, body))
		}

		if err := json.Unmarshal(body, &order); err != nil {
			return "", nil, fmt.Errorf("%w: decode body: %w", ErrFinalize, err)
		}
		switch order.Status {
		case statusValid:
			if order.Certificate == "" {
				return "", nil, fmt.Errorf("%w: valid order has no certificate URL", ErrFinalize)
			}
			return order.Certificate, keyPEM, nil
		case statusInvalid:
			return "", nil, fmt.Errorf("%w: rejected by CA", ErrOrderInvalid)
		}

		certURL, err := f.pollOrder(ctx, orderURL)
		if err != nil {
			return "", nil, err
		}
		return certURL, keyPEM, nil
	}()
	f.client.emit(ctx, "finalize", start, f.domain, err)
	return certURL, keyPEM, err
}

func (f *flow) pollOrder(ctx context.Context, orderURL string) (string, error) {
	for attempt := 0; attempt < f.client.pollAttempts; attempt++ {
		if err := sleepCtx(ctx, f.client.pollInterval); err != nil {
			return "", fmt.Errorf("%w: %w", ErrOrderTimeout, err)
		}

		resp, body, err := f.post(ctx, orderURL, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrFinalize, err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: %s", ErrFinalize, problemDetail(resp.StatusCode, body))
		}

		var order orderResource
		if err := json.Unmarshal(body, &order); err != nil {
			return "", fmt.Errorf("%w: decode body: %w", ErrFinalize, err)
		}

		switch order.Status {
		case statusValid:
			if order.Certificate == "" {
				return "", fmt.Errorf("%w: valid order has no certificate URL", ErrFinalize)
			}
			return order.Certificate, nil
		case statusInvalid:
			return "", fmt.Errorf("%w: rejected by CA", ErrOrderInvalid)
		}
	}
	return "", fmt.Errorf("%w: still processing after %d attempts", ErrOrderTimeout, f.client.pollAttempts)
}

func (f *flow) downloadCertificate(ctx context.Context, certURL string) ([]byte, time.Time, error) {
	start := time.Now()
	certPEM, expiresAt, err := func() ([]byte, time.Time, error) {
		resp, body, err := f.postWithAccept(ctx, certURL, nil, "application/pem-certificate-chain")
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", ErrCertificateDownload, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, time.Time{}, fmt.Errorf("%w: %s", ErrCertificateDownload, problemDetail(resp.StatusCode, body))
		}

		// An unparseable leaf is not fatal: assume the standard 90 day
		// validity rather than discarding an otherwise usable chain.
		expiresAt, parseErr := leafNotAfter(body)
		if parseErr != nil {
			f.client.logger.WarnContext(ctx, "cannot parse leaf certificate, assuming 90 day validity",
				slog.String("domain", f.domain), slog.Any("error", parseErr))
			expiresAt = time.Now().Add(fallbackValidity)
		}
		return body, expiresAt, nil
	}()
	f.client.emit(ctx, "download", start, f.domain, err)
	return certPEM, expiresAt, err
}

// leafNotAfter extracts the expiry of the first certificate in a PEM chain.
func leafNotAfter(chainPEM []byte) (time.Time, error) {
	block, _ := pem.Decode(chainPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return time.Time{}, fmt.Errorf("no certificate block in chain")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// generateCSR builds a DER-encoded PKCS#10 request for the domain with a
// fresh 2048-bit key, distinct from the account key.
func generateCSR(domain string) (csrDER, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, domainKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate domain key: %w", err)
	}

	template := x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: domain},
		DNSNames:           []string{domain},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	csrDER, err = x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create csr: %w", err)
	}

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return csrDER, keyPEM, nil
}

func problemDetail(status int, body []byte) string {
	var p problem
	if err := json.Unmarshal(body, &p); err == nil && (p.Type != "" || p.Detail != "") {
		return fmt.Sprintf("status %d, %s", status, p.String())
	}
	return fmt.Sprintf("status %d", status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
