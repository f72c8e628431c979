package middleware

import (
	"net/http"
	"strings"
)

// CORS allows cross-origin requests from the configured origins. A single
// "*" entry allows every origin; "*.example.com" matches by suffix.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				for _, allowed := range allowedOrigins {
					if originMatches(origin, allowed) {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "300")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originMatches(origin, allowed string) bool {
	if allowed == "*" || origin == allowed {
		return true
	}
	// Wildcard match: "*.example.com" matches "app.example.com"
	if strings.HasPrefix(allowed, "*.") {
		return strings.HasSuffix(origin, strings.TrimPrefix(allowed, "*"))
	}
	return false
}
