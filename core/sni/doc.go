// Package sni selects TLS certificates per incoming handshake based on
// the requested server name.
//
// The dispatcher resolves a hostname through a fallback chain so the
// listener keeps accepting HTTPS connections even before real
// certificates are issued: an exact match against the managed domain set
// serves the domain's own certificate, a subdomain of a managed domain
// serves the parent's certificate, a managed name without material yet is
// served the self-signed bootstrap certificate, and an unmanaged name is
// left to the TLS stack's default.
//
//	dispatcher := sni.New(cache, bootstrap, []string{"example.com"})
//	server := &http.Server{
//		TLSConfig: &tls.Config{GetCertificate: dispatcher.GetCertificate},
//	}
package sni
