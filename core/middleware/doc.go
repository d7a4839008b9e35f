// Package middleware provides the HTTP middleware used by the HTTPS
// status surface: request IDs for tracing, request logging, and security
// headers for a TLS-only service.
package middleware
