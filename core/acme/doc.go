// Package acme implements an RFC 8555 client specialized for http-01
// issuance against a single CA directory. It drives the complete state
// machine from directory discovery through account registration, order
// creation, authorization/challenge validation, CSR finalization, and
// certificate download, publishing challenge responses through a
// ChallengeStore that an HTTP front server exposes at
// /.well-known/acme-challenge/.
//
// Every request is authenticated with an RS256 JWS carrying a fresh
// Replay-Nonce; the account key is an RSA-2048 key persisted on first use.
// Each issued certificate gets its own 2048-bit key, distinct from the
// account key.
//
//	client, err := acme.New(acme.Config{
//		Enabled:        true,
//		DirectoryURL:   acme.LetsEncryptStaging,
//		Email:          "ops@example.com",
//		AccountKeyPath: "/var/lib/certward/account.key",
//	}, challengeStore)
//	if err != nil {
//		return err
//	}
//
//	cert, err := client.Provision(ctx, "example.com")
//
// Failures are stage-scoped sentinel errors (ErrDirectory, ErrOrder,
// ErrChallengeTimeout, ...) so callers can tell where a run died. The client
// never retries across stages; scheduling retries is the renewal
// orchestrator's job. Provisioning can run concurrently for different
// domains, while attempts for the same domain are serialized internally.
package acme
