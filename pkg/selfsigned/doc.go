// Package selfsigned generates the bootstrap certificate the TLS listener
// falls back to before real ACME material is available. The pair is RSA-2048,
// valid 365 days with CN=localhost, written once to fixed paths and reused
// on every later call.
//
//	gen := selfsigned.New("/var/lib/certward/bootstrap")
//	cert, err := gen.Certificate()
package selfsigned
