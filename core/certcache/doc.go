// Package certcache keeps decoded TLS certificates in memory so SNI
// lookups never touch disk or the network on the hot path.
//
// Certificates enter the cache either explicitly via Put, typically right
// after issuance, or lazily via Get when a fallback store is configured.
// Entries are keyed by lowercased hostname and bounded by a batch LRU
// eviction policy: when the cache exceeds its limit, the least recently
// used tenth is dropped in one pass. A background sweep removes entries
// whose certificates have expired.
//
//	store, _ := certstore.NewFS("certs")
//	cache := certcache.New(
//		certcache.WithMaxEntries(1000),
//		certcache.WithFallback(store),
//	)
//	defer cache.Close()
//
//	record, err := cache.Get(ctx, "example.com")
//	if err != nil {
//		// provision a certificate, then cache.Put(...)
//	}
//	_ = record.Certificate // *tls.Certificate for the handshake
package certcache
