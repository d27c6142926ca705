// ABOUTME: HTTP Basic authentication for the dyndns2 update endpoint.
// ABOUTME: Credentials are compared in constant time; failures answer "badauth".

package dyndns

import (
	"crypto/subtle"
	"net/http"
)

// Auth holds the single set of credentials accepted by the update endpoint.
type Auth struct {
	User     string
	Password string
}

// HTTPMiddleware returns an http.Handler that checks Basic credentials
// before calling next.
func (a *Auth) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			log.Warningf("missing authentication header from %s", r.RemoteAddr)
			unauthorized(w)
			return
		}
		if !a.valid(user, pass) {
			log.Warningf("invalid credentials from %s", r.RemoteAddr)
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// valid compares both fields even when the first one already differs.
func (a *Auth) valid(user, pass string) bool {
	userOK := constantTimeEqual(user, a.User)
	passOK := constantTimeEqual(pass, a.Password)
	return userOK && passOK
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="dyndns"`)
	updateCount.WithLabelValues("badauth").Inc()
	writeText(w, http.StatusUnauthorized, "badauth")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
