package acme

import "errors"

// Stage-scoped errors. Every stage of the provisioning flow fails with its
// own kind so the renewal orchestrator and operators can tell where a run
// died; match with errors.Is.
var (
	// ErrDisabled is returned when provisioning is switched off by
	// configuration. No network call is made.
	ErrDisabled = errors.New("acme provisioning disabled")

	// ErrDirectory is returned when the directory document cannot be
	// fetched or is malformed.
	ErrDirectory = errors.New("directory discovery failed")

	// ErrAccount is returned when the account key cannot be ensured or
	// account registration fails.
	ErrAccount = errors.New("account registration failed")

	// ErrOrder is returned when order creation fails.
	ErrOrder = errors.New("order creation failed")

	// ErrAuthorization is returned when an authorization resource cannot
	// be fetched or decoded.
	ErrAuthorization = errors.New("authorization fetch failed")

	// ErrNoHTTP01Challenge is returned when an authorization offers no
	// http-01 challenge.
	ErrNoHTTP01Challenge = errors.New("no http-01 challenge offered")

	// ErrChallenge is returned when signalling challenge readiness fails.
	ErrChallenge = errors.New("challenge request failed")

	// ErrChallengeInvalid is returned when the CA rejected the challenge.
	ErrChallengeInvalid = errors.New("challenge validation failed")

	// ErrChallengeTimeout is returned when challenge polling is exhausted
	// without reaching a terminal status.
	ErrChallengeTimeout = errors.New("challenge validation timed out")

	// ErrFinalize is returned when CSR submission fails.
	ErrFinalize = errors.New("order finalization failed")

	// ErrOrderInvalid is returned when the order reached the invalid state
	// after finalization.
	ErrOrderInvalid = errors.New("order invalid")

	// ErrOrderTimeout is returned when order polling is exhausted without
	// the order becoming valid.
	ErrOrderTimeout = errors.New("order polling timed out")

	// ErrCertificateDownload is returned when the issued certificate
	// cannot be downloaded.
	ErrCertificateDownload = errors.New("certificate download failed")
)
