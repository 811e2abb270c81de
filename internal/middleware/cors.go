// Package middleware holds small, composable HTTP wrappers.
package middleware

import "net/http"

// CORS answers browser preflights for the SDK endpoints and reflects the
// caller's Origin.  API keys are scoped per tenant, so the edge accepts
// bids from any origin; the runtime itself enforces origin policy and a
// rejection there surfaces as CORS_BLOCKED in the probe taxonomy.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers",
				"Authorization, Content-Type, X-Requested-With")
			h.Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
