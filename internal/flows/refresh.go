package flows

import (
	"context"
	"errors"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/internal"
	"github.com/croft-labs/authcore/internal/rate"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level
// mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailurePrincipal
	RefreshFailureRateLimited
	RefreshFailureNegativeCache
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureSign
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SubjectID string
	Pair      TokenPair

	// FamilyInvalidated reports how many sibling rows were retired on the
	// reuse path; audit metadata only.
	FamilyInvalidated int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseExpired  func(string) (*jwt.AccessClaims, error)
	HashToken     func(string) internal.TokenHash
	ValidateShape func(string) error
	Minter        PairMinter
	RefreshStore  RotationStore
	Cache         StateCache
	RateLimiter   RefreshRateLimiter

	// FamilyInvalidationOnReuse treats replay of a consumed or invalidated
	// token as a theft signal and retires the subject's entire active
	// family, not just the replayed row.
	FamilyInvalidationOnReuse bool

	CacheValidTTL time.Duration
	Warn          func(string, ...any)
}

// RunRefresh executes one rotation: authenticate the principal from the
// (possibly expired) access token, consume the provided refresh token,
// fan out sibling invalidation, and issue a new pair. All durable
// mutations ride on the store's atomic Rotate; nothing partial is ever
// visible on failure.
func RunRefresh(ctx context.Context, accessToken, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseExpired(accessToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	subjectID := claims.UID
	if subjectID == "" {
		return RefreshResult{Failure: RefreshFailurePrincipal}
	}

	if deps.RateLimiter != nil {
		switch err := deps.RateLimiter.CheckRefresh(ctx, subjectID); {
		case errors.Is(err, rate.ErrRateLimited):
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, SubjectID: subjectID}
		case err != nil:
			// Throttle backend down; fail open, the store still arbitrates.
			if deps.Warn != nil {
				deps.Warn("authcore: refresh limiter check failed, continuing: %v", err)
			}
		}
	}

	if err := deps.ValidateShape(refreshToken); err != nil {
		deps.recordFailedAttempt(ctx, subjectID)
		return RefreshResult{Failure: RefreshFailureNotFound, Err: err, SubjectID: subjectID}
	}

	now := deps.Minter.Now()
	providedHash := deps.HashToken(refreshToken)

	// Known-dead tokens short-circuit without a store round trip.
	if deps.Cache.RefreshState(ctx, subjectID, providedHash) == cache.StateInvalid {
		deps.recordFailedAttempt(ctx, subjectID)
		return RefreshResult{Failure: RefreshFailureNegativeCache, SubjectID: subjectID}
	}

	plaintext, nextRow, err := deps.Minter.PrepareRefreshRow(subjectID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, SubjectID: subjectID}
	}

	outcome, err := deps.RefreshStore.Rotate(ctx, subjectID, providedHash, nextRow)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRefreshNotFound):
			// Cache the rejection; an unknown token stays dead for at most
			// one full refresh lifetime.
			deps.Cache.SetRefreshState(ctx, subjectID, providedHash, cache.StateInvalid, deps.Minter.RefreshTokenTTL)
			deps.recordFailedAttempt(ctx, subjectID)
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, SubjectID: subjectID}

		case errors.Is(err, store.ErrRefreshReused):
			retired := 0
			if deps.FamilyInvalidationOnReuse {
				retired = deps.invalidateFamily(ctx, subjectID, now)
			}
			deps.Cache.SetRefreshState(ctx, subjectID, providedHash, cache.StateInvalid, deps.Minter.RefreshTokenTTL)
			deps.recordFailedAttempt(ctx, subjectID)
			return RefreshResult{
				Failure:           RefreshFailureReuse,
				Err:               err,
				SubjectID:         subjectID,
				FamilyInvalidated: retired,
			}

		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subjectID}
		}
	}

	// Retired rows become negative entries for their remaining life, so
	// replaying them fails fast without a store round trip.
	deps.Cache.SetRefreshState(ctx, subjectID, outcome.Consumed.TokenHash, cache.StateInvalid,
		remainingLife(outcome.Consumed.ExpiresAt, now))
	for _, sibling := range outcome.Invalidated {
		deps.Cache.SetRefreshState(ctx, subjectID, sibling.TokenHash, cache.StateInvalid,
			remainingLife(sibling.ExpiresAt, now))
	}
	deps.Cache.SetRefreshState(ctx, subjectID, nextRow.TokenHash, cache.StateValid,
		validStateTTL(deps.CacheValidTTL, nextRow.ExpiresAt, now))

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetRefresh(ctx, subjectID); err != nil && deps.Warn != nil {
			deps.Warn("authcore: refresh limiter reset failed: %v", err)
		}
	}

	access, jti, expiry, err := deps.Minter.SignAccess(jwt.Subject{
		ID:    claims.UID,
		Email: claims.Email,
		Name:  claims.Name,
	})
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, SubjectID: subjectID}
	}

	return RefreshResult{
		SubjectID: subjectID,
		Pair: TokenPair{
			AccessToken:  access,
			RefreshToken: plaintext,
			AccessExpiry: expiry,
			JTI:          jti,
			SubjectID:    subjectID,
		},
	}
}

func (deps RefreshDeps) invalidateFamily(ctx context.Context, subjectID string, now time.Time) int {
	retired, err := deps.RefreshStore.InvalidateAllForSubject(ctx, subjectID)
	if err != nil {
		if deps.Warn != nil {
			deps.Warn("authcore: family invalidation on reuse failed: %v", err)
		}
		return 0
	}
	for _, row := range retired {
		deps.Cache.SetRefreshState(ctx, subjectID, row.TokenHash, cache.StateInvalid,
			remainingLife(row.ExpiresAt, now))
	}
	return len(retired)
}

func (deps RefreshDeps) recordFailedAttempt(ctx context.Context, subjectID string) {
	if deps.RateLimiter == nil {
		return
	}
	if err := deps.RateLimiter.IncrementRefresh(ctx, subjectID); err != nil && deps.Warn != nil {
		deps.Warn("authcore: refresh limiter increment failed: %v", err)
	}
}
