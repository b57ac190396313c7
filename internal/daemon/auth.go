package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const unauthorizedBody = `{"error":"unauthorized","kind":"unauthorized"}` + "\n"

// authMiddleware guards a management route with a bearer token. An empty
// token disables the check.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	want := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(unauthorizedBody))
			return
		}
		next(w, r)
	}
}
