package server

import (
	"net/http"
)

// apiSecurityHeaders apply to every response. The API only serves JSON so
// nothing may be rendered, framed or embedded cross-origin.
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"X-Frame-Options":              "DENY",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Resource-Policy": "same-origin",
}

// securityHeadersMiddleware sets the headers for a JSON-only API.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range apiSecurityHeaders {
			w.Header().Set(k, v)
		}
		// only over https, directly or behind the cloud run proxy
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
