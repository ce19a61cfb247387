package middleware

import "net/http"

// APIHeaders sets the response headers every JSON API response carries.
type APIHeaders struct {
	secure bool
}

// NewAPIHeaders creates APIHeaders. secure enables HSTS.
func NewAPIHeaders(secure bool) *APIHeaders {
	return &APIHeaders{secure: secure}
}

// Handler returns middleware that sets the headers.
func (m *APIHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// Job status and artifacts change between requests.
		h.Set("Cache-Control", "no-store")
		if m.secure {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
