// Package certstore defines the persistent certificate store contract used
// by the certificate cache and the renewal orchestrator, plus the built-in
// backends: FS keeps <domain>.crt/<domain>.key pairs on disk with atomic
// writes, and AutocertCache adapts any golang.org/x/crypto autocert.Cache so
// previously provisioned autocert material keeps working.
//
// Remote backends live under integration/certstore (redis, s3) and satisfy
// the same Store interface.
package certstore
