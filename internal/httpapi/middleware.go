// Package httpapi exposes the engine's read-only outputs over HTTP: the
// chi router, the REST handlers of §6, a websocket broadcast endpoint
// fed from internal/bus, and the Prometheus /metrics surface.
package httpapi

import (
	"net/http"
)

// SecurityHeaders adds the standard defensive header set.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// InternalAuth rejects any request that doesn't present the configured
// internal token via X-Internal-Token. An empty token disables the
// engine's entire API surface rather than leaving it open.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Internal-Token") != token {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid internal token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
