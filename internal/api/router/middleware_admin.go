package router

import (
	"net/http"
	"strings"
)

const adminTokenHeader = "X-Admin-Token"

// requireAdminToken guards the operator endpoints with a shared token.
// When expected is empty, the routes are disabled rather than left open.
func requireAdminToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "admin endpoints disabled", http.StatusForbidden)
				return
			}
			token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
			if token == "" || token != expected {
				http.Error(w, "invalid admin token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
