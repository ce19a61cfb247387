package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth guards an endpoint, such as /metrics, with a single static
// credential. With no credential configured every request passes.
type BasicAuth struct {
	realm    string
	username string
	password string
}

// NewBasicAuth creates a BasicAuth for realm.
func NewBasicAuth(realm, username, password string) *BasicAuth {
	return &BasicAuth{realm: realm, username: username, password: password}
}

// Enabled reports whether a credential is configured.
func (m *BasicAuth) Enabled() bool {
	return m.username != "" || m.password != ""
}

// Handler returns middleware that requires the configured credential.
func (m *BasicAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		// Compare both halves every time; constant-time compare per field.
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
