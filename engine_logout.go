package authcore

import (
	"context"
	"strconv"

	"github.com/croft-labs/authcore/internal/flows"
)

// Logout invalidates every active refresh token the subject holds and
// places the presented access token's jti on the revocation denylist for
// its remaining life. Refresh invalidation is the load-bearing step and
// fails the call on store errors; access revocation and expired-row
// pruning are best effort. accessToken may be empty when the caller no
// longer has one.
func (e *Engine) Logout(ctx context.Context, subjectID, accessToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	if subjectID == "" {
		return validationErr("subject_id", "must not be empty")
	}

	result := flows.RunLogout(ctx, subjectID, accessToken, flows.LogoutDeps{
		ParseExpired: e.jwtManager.ParseExpired,
		RefreshStore: e.refreshStore,
		Revocations:  e.revocations,
		Cache:        e.cache,
		Now:          e.timeNow,
		Warn:         e.warn,
	})

	if result.Failure != flows.LogoutFailureNone {
		e.auditEvent(ctx, "logout", subjectID, "", false, result.Err, nil)
		return ErrStoreUnavailable
	}

	e.metricInc(MetricLogout)
	if result.AccessRevoked {
		e.metricInc(MetricAccessRevoked)
	}
	e.auditEvent(ctx, "logout", subjectID, result.JTI, true, nil, map[string]string{
		"refresh_invalidated": strconv.Itoa(result.RefreshInvalidated),
	})
	return nil
}
