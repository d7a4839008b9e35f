// Package redis stores certificate/key pairs in Redis, one hash per
// domain, implementing the certstore.Store contract. Both PEM blobs live
// in the same hash so a read never observes a certificate without its
// matching key.
package redis
