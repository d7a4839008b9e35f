// Package challenge implements the ephemeral store backing ACME HTTP-01
// validation. The issuance flow publishes each token's key authorization
// here, and the plain-HTTP front server exposes it at
// /.well-known/acme-challenge/{token} until the CA has validated it.
//
// Entries carry a 10 minute TTL enforced both lazily on Get and by a
// background sweep, so the store stays bounded even when a CA never
// completes validation.
//
//	store := challenge.NewStore()
//	defer store.Close()
//
//	mux.Handle(challenge.WellKnownPath, store.Handler())
package challenge
