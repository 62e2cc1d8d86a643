package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relaykit/relay/internal/httputil"
)

// Recovery converts handler panics into a JSON 500 response. The panic
// detail is only exposed to the client when devMode is set.
func Recovery(devMode bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("admin: panic serving %s %s: %v", r.Method, r.URL.Path, rec)
					msg := "Internal server error"
					if devMode {
						msg = fmt.Sprintf("Internal server error: %v", rec)
					}
					httputil.WriteError(w, http.StatusInternalServerError, msg)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
