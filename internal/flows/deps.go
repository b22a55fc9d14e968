package flows

import (
	"context"
	"strings"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/internal"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// TokenPair is the result of a successful login or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExpiry time.Time
	JTI          string
	SubjectID    string
}

// StateCache is the subset of the token-state cache the flows consume.
// Satisfied by *cache.TokenStateCache, including its disabled (nil client)
// form.
type StateCache interface {
	RefreshState(ctx context.Context, subjectID string, hash internal.TokenHash) cache.State
	SetRefreshState(ctx context.Context, subjectID string, hash internal.TokenHash, state cache.State, ttl time.Duration)
	RevocationState(ctx context.Context, jti string) cache.State
	SetRevocationState(ctx context.Context, jti string, state cache.State, ttl time.Duration)
}

// RotationStore is the store surface the refresh flow needs.
type RotationStore interface {
	Rotate(ctx context.Context, subjectID string, providedHash internal.TokenHash, next *store.RefreshToken) (*store.RotationOutcome, error)
	InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*store.RefreshToken, error)
}

// RefreshRateLimiter throttles failed refresh attempts per subject.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, subjectID string) error
	IncrementRefresh(ctx context.Context, subjectID string) error
	ResetRefresh(ctx context.Context, subjectID string) error
}

// PairMinter prepares the pieces of a new token pair: a signed access
// token and an opaque refresh token with its prepared (unpersisted) row.
type PairMinter struct {
	SignAccess      func(sub jwt.Subject) (token, jti string, expiry time.Time, err error)
	NewOpaqueToken  func() (plaintext string, hash internal.TokenHash, err error)
	NewRowID        func() string
	RefreshTokenTTL time.Duration
	Now             func() time.Time
}

// PrepareRefreshRow generates a fresh opaque refresh token and its active
// store row. The row is not persisted; login flows Create it, rotation
// passes it through the store's atomic Rotate.
func (m PairMinter) PrepareRefreshRow(subjectID string) (string, *store.RefreshToken, error) {
	plaintext, hash, err := m.NewOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	row := store.NewRefreshToken(m.NewRowID(), subjectID, hash, m.Now(), m.RefreshTokenTTL)
	return plaintext, row, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// remainingLife clamps the time until expiry to zero.
func remainingLife(expiresAt time.Time, now time.Time) time.Duration {
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// validStateTTL caps a positive cache entry so it can never outlive the
// token it vouches for.
func validStateTTL(configured time.Duration, expiresAt time.Time, now time.Time) time.Duration {
	life := remainingLife(expiresAt, now)
	if configured <= 0 || configured > life {
		return life
	}
	return configured
}
