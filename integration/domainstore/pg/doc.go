// Package pg supplies tenant custom domains from PostgreSQL to the
// renewal orchestrator. Only domains that have passed ownership
// verification are returned; unverified rows never reach the ACME flow.
package pg
