package middleware

import (
	"context"
	"net/http"

	"github.com/croft-labs/authcore"
	"github.com/croft-labs/authcore/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims injected by [Require].
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Gate returns middleware that runs only the revocation check. Requests
// without a bearer token, or with one the engine cannot decode, pass
// through untouched; full verification stays with the downstream handler.
// Only a known-revoked token is stopped, with a fixed 401 body.
func Gate(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			if engine.Authorize(r.Context(), r.Header.Get("Authorization")) == authcore.DecisionDeny {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
