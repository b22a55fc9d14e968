package flows

import (
	"context"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// LogoutFailureKind classifies logout flow failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureStore
)

// LogoutResult reports what the flow managed to tear down.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error

	RefreshInvalidated int
	AccessRevoked      bool
	JTI                string
}

// LogoutRevocationStore is the denylist surface logout needs.
type LogoutRevocationStore interface {
	Revoke(ctx context.Context, rec store.RevokedAccessToken) error
	PruneSubject(ctx context.Context, subjectID string, now time.Time) (int64, error)
}

// LogoutRefreshStore is the refresh-side surface logout needs.
type LogoutRefreshStore interface {
	InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*store.RefreshToken, error)
	PruneSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseExpired func(string) (*jwt.AccessClaims, error)
	RefreshStore LogoutRefreshStore
	Revocations  LogoutRevocationStore
	Cache        StateCache
	Now          func() time.Time
	Warn         func(string, ...any)
}

// RunLogout invalidates every active refresh token for the subject and,
// when a decodable access token accompanies the call, places its jti on
// the denylist for the token's remaining life. Refresh invalidation is
// the load-bearing step; access revocation and pruning are best effort.
func RunLogout(ctx context.Context, subjectID, accessToken string, deps LogoutDeps) LogoutResult {
	now := deps.Now()

	retired, err := deps.RefreshStore.InvalidateAllForSubject(ctx, subjectID)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	for _, row := range retired {
		deps.Cache.SetRefreshState(ctx, subjectID, row.TokenHash, cache.StateInvalid,
			remainingLife(row.ExpiresAt, now))
	}

	res := LogoutResult{RefreshInvalidated: len(retired)}

	if accessToken != "" {
		claims, err := deps.ParseExpired(accessToken)
		switch {
		case err != nil:
			if deps.Warn != nil {
				deps.Warn("authcore: logout access token undecodable, skipping revocation: %v", err)
			}
		case claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(now):
			// Already expired; the verifier rejects it without our help.
		case claims.ID != "":
			rec := store.RevokedAccessToken{
				JTI:       claims.ID,
				SubjectID: subjectID,
				ExpiresAt: claims.ExpiresAt.Time,
				RevokedAt: now,
			}
			if err := deps.Revocations.Revoke(ctx, rec); err != nil {
				if deps.Warn != nil {
					deps.Warn("authcore: access token revocation failed: %v", err)
				}
			} else {
				res.AccessRevoked = true
				res.JTI = claims.ID
				deps.Cache.SetRevocationState(ctx, claims.ID, cache.StateInvalid,
					remainingLife(rec.ExpiresAt, now))
			}
		}
	}

	if _, err := deps.RefreshStore.PruneSubject(ctx, subjectID, now); err != nil && deps.Warn != nil {
		deps.Warn("authcore: refresh prune on logout failed: %v", err)
	}
	if _, err := deps.Revocations.PruneSubject(ctx, subjectID, now); err != nil && deps.Warn != nil {
		deps.Warn("authcore: revocation prune on logout failed: %v", err)
	}

	return res
}
