package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken guards a route group with a bearer token. An empty token
// leaves the group open, which is the local-dev default.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := bearerToken(r)
			if presented == "" {
				sendJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing authentication"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				sendJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid authentication"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
