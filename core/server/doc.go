// Package server pairs an HTTP listener with an HTTPS listener for
// serving ACME-managed domains. The HTTP side exists for HTTP-01
// challenge validation and permanent redirects to HTTPS; the HTTPS side
// hands certificate selection to a per-handshake callback so new domains
// start serving without a restart.
//
//	srv, err := server.New(cfg, challengeStore.Handler(), dispatcher, logger)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx, appHandler)
package server
