package flows

import (
	"context"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/jwt"
)

// GateDecision is the outcome of a revocation check.
type GateDecision int

const (
	// GateAllow lets the request proceed. Absent, malformed, and
	// unverifiable tokens all land here; the gate only answers the
	// revocation question, full validation belongs to the verifier.
	GateAllow GateDecision = iota
	// GateDeny means the token's jti is on the denylist.
	GateDeny
)

// GateResult carries the decision plus the jti that drove it, when one
// could be extracted.
type GateResult struct {
	Decision GateDecision
	JTI      string

	// FromCache reports whether the denylist answer came from the cache
	// rather than the store.
	FromCache bool
}

// GateRevocationStore is the denylist read surface the gate needs.
type GateRevocationStore interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// GateDeps captures revocation gate dependencies.
type GateDeps struct {
	ParseExpired func(string) (*jwt.AccessClaims, error)
	Revocations  GateRevocationStore
	Cache        StateCache

	// CacheValidTTL caps "not revoked" entries so a lost revocation write
	// goes stale within one rotation window instead of the token's whole
	// remaining life.
	CacheValidTTL time.Duration

	Now  func() time.Time
	Warn func(string, ...any)
}

// RunGate answers whether the bearer token in authHeader has been
// revoked. It fails open: anything that prevents reaching a verdict,
// from a missing header to a store outage, yields GateAllow so that a
// denylist hiccup never locks out holders of valid tokens.
func RunGate(ctx context.Context, authHeader string, deps GateDeps) GateResult {
	raw, ok := BearerToken(authHeader)
	if !ok {
		return GateResult{Decision: GateAllow}
	}

	claims, err := deps.ParseExpired(raw)
	if err != nil || claims.ID == "" {
		return GateResult{Decision: GateAllow}
	}
	jti := claims.ID

	switch deps.Cache.RevocationState(ctx, jti) {
	case cache.StateInvalid:
		return GateResult{Decision: GateDeny, JTI: jti, FromCache: true}
	case cache.StateValid:
		return GateResult{Decision: GateAllow, JTI: jti, FromCache: true}
	}

	revoked, err := deps.Revocations.IsRevoked(ctx, jti)
	if err != nil {
		if deps.Warn != nil {
			deps.Warn("authcore: revocation lookup failed, allowing: %v", err)
		}
		return GateResult{Decision: GateAllow, JTI: jti}
	}

	now := deps.Now()
	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = remainingLife(claims.ExpiresAt.Time, now)
	}
	if revoked {
		deps.Cache.SetRevocationState(ctx, jti, cache.StateInvalid, ttl)
		return GateResult{Decision: GateDeny, JTI: jti}
	}
	if claims.ExpiresAt != nil {
		deps.Cache.SetRevocationState(ctx, jti, cache.StateValid,
			validStateTTL(deps.CacheValidTTL, claims.ExpiresAt.Time, now))
	}
	return GateResult{Decision: GateAllow, JTI: jti}
}
