// Package renewal schedules certificate provisioning and renewal across
// the managed domain set.
//
// Each domain moves through a small lifecycle: missing, provisioning,
// issued, expiring, and back to provisioning when fewer than thirty days
// of validity remain. Renewal is re-issuance; the orchestrator simply
// re-runs the full ACME flow. Domains are independent: checks run in
// separate goroutines, concurrent checks for one domain are serialized,
// and a failed attempt schedules its own retry without touching other
// domains.
//
// Start ensures the bootstrap certificate exists before anything else, so
// the TLS listener can accept handshakes from the first second, then
// sweeps primary domains every 12 hours and tenant domains daily.
//
//	orchestrator, err := renewal.New(client, store, cache, bootstrap,
//		[]string{"example.com"},
//		renewal.WithDomainSource(tenantDomains),
//		renewal.WithRegistrar(dispatcher),
//	)
//	if err != nil {
//		return err
//	}
//	go orchestrator.Start(ctx)
package renewal
