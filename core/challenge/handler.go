package challenge

import (
	"net/http"
	"strings"
)

// WellKnownPath is the URL prefix the CA fetches HTTP-01 responses from.
const WellKnownPath = "/.well-known/acme-challenge/"

// Handler serves HTTP-01 validation requests from the store. Stored bodies
// are returned as text/plain with 200; unknown or expired tokens get 404.
// Mount it on the plain-HTTP server that fronts port 80.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.URL.Path, WellKnownPath)
		if !ok || token == "" || strings.Contains(token, "/") {
			http.NotFound(w, r)
			return
		}

		response, ok := s.Get(token)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(response))
	})
}
