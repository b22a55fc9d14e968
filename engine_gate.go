package authcore

import (
	"context"

	"github.com/croft-labs/authcore/internal/flows"
	"github.com/croft-labs/authcore/jwt"
)

// Authorize runs the revocation gate over an Authorization header value.
// It answers only the denylist question and fails open: absent,
// malformed, and unverifiable tokens pass through, as does any backend
// failure. DecisionDeny is returned solely for a token whose jti is
// known-revoked. Pair it with [Engine.Validate] when signature and expiry
// checks are also required.
func (e *Engine) Authorize(ctx context.Context, authHeader string) Decision {
	if e == nil || e.jwtManager == nil {
		return DecisionAllow
	}

	start := e.timeNow()
	result := flows.RunGate(ctx, authHeader, flows.GateDeps{
		ParseExpired:  e.jwtManager.ParseExpired,
		Revocations:   e.revocations,
		Cache:         e.cache,
		CacheValidTTL: e.config.Cache.ValidStateTTL,
		Now:           e.timeNow,
		Warn:          e.gateWarn,
	})
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthorizeLatency, e.timeNow().Sub(start))
	}

	if result.Decision == flows.GateDeny {
		e.metricInc(MetricGateDenied)
		e.auditEvent(ctx, "gate_deny", "", result.JTI, false, nil, nil)
		return DecisionDeny
	}
	return DecisionAllow
}

// gateWarn counts degraded fail-open verdicts in addition to logging.
func (e *Engine) gateWarn(format string, args ...any) {
	e.metricInc(MetricGateAllowedDegraded)
	if e.warn != nil {
		e.warn(format, args...)
	}
}

// Validate fully verifies an access token: signature, expiry, issuer,
// audience, and the revocation denylist. Returns the claims on success
// and [ErrUnauthorized] on any verification failure. Unlike [Authorize],
// a revocation verdict here applies to an already signature-checked
// token.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, validationErr("access_token", "must not be empty")
	}

	claims, err := e.jwtManager.Parse(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if e.Authorize(ctx, "Bearer "+accessToken) == DecisionDeny {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// IsRevoked reports whether a jti is on the denylist, bypassing the
// cache. Intended for introspection endpoints and tests.
func (e *Engine) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if e == nil || e.revocations == nil {
		return false, ErrEngineNotReady
	}
	revoked, err := e.revocations.IsRevoked(ctx, jti)
	if err != nil {
		return false, ErrStoreUnavailable
	}
	return revoked, nil
}
