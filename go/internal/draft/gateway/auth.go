package gateway

import (
	"errors"
	"net/http"

	"github.com/mcdev12/leaguedraft/go/internal/auth"
)

// requireToken rejects requests without a valid bearer token and stores the
// token's claims in the request context. A disabled authenticator lets
// every request through.
func requireToken(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseHeader(r.Header.Get("Authorization"))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrMalformedHeader) {
					msg = err.Error()
				}
				writeError(w, http.StatusUnauthorized, codeUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
