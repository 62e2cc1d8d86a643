package ws

import (
	"net/http"
	"strings"
)

// originChecker builds the CheckOrigin function for the upgrader from the
// configured origin list. An empty list accepts everything; requests without
// an Origin header (same-origin or non-browser clients) are always accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	origins := make([]string, 0, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(origin, o) {
				return true
			}
		}
		return false
	}
}
