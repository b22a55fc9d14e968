package store

import (
	"errors"
	"time"

	"github.com/croft-labs/authcore/internal"
)

// ErrTerminalState is returned by RefreshToken mutators when the row has
// already been consumed or invalidated. Used and invalidated are terminal:
// no mutator ever transitions a row back to active.
var ErrTerminalState = errors.New("refresh token already in terminal state")

// RefreshToken is one durable rotation-state row. The opaque plaintext is
// never persisted; only its sha256 hash is.
//
// State flags are unexported on purpose: all transitions go through
// MarkUsed and MarkInvalidated so the terminal-state invariant is enforced
// at the call site rather than by convention.
type RefreshToken struct {
	ID        string
	SubjectID string
	TokenHash internal.TokenHash
	CreatedAt time.Time
	ExpiresAt time.Time

	used        bool
	invalidated bool
}

// NewRefreshToken builds an active row for a freshly issued token.
func NewRefreshToken(id, subjectID string, hash internal.TokenHash, now time.Time, ttl time.Duration) *RefreshToken {
	return &RefreshToken{
		ID:        id,
		SubjectID: subjectID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Rehydrate reconstructs a row loaded from durable storage, including its
// state flags. It is intended for store implementations only.
func Rehydrate(id, subjectID string, hash internal.TokenHash, createdAt, expiresAt time.Time, used, invalidated bool) *RefreshToken {
	return &RefreshToken{
		ID:          id,
		SubjectID:   subjectID,
		TokenHash:   hash,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		used:        used,
		invalidated: invalidated,
	}
}

// Active reports whether the row may still be productively consumed.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.used && !t.invalidated && now.Before(t.ExpiresAt)
}

// Used reports whether the row has been consumed by a rotation.
func (t *RefreshToken) Used() bool { return t.used }

// Invalidated reports whether the row was invalidated as a sibling of a
// consumed token or by logout.
func (t *RefreshToken) Invalidated() bool { return t.invalidated }

// MarkUsed consumes the row. Fails on rows already in a terminal state.
func (t *RefreshToken) MarkUsed() error {
	if t.used || t.invalidated {
		return ErrTerminalState
	}
	t.used = true
	return nil
}

// MarkInvalidated retires the row without consuming it. Fails on rows
// already in a terminal state.
func (t *RefreshToken) MarkInvalidated() error {
	if t.used || t.invalidated {
		return ErrTerminalState
	}
	t.invalidated = true
	return nil
}

// RevokedAccessToken is one denylist entry. ExpiresAt is copied from the
// access token it revokes, so entries age out exactly when the token would
// have been rejected by expiry anyway.
type RevokedAccessToken struct {
	JTI       string
	SubjectID string
	ExpiresAt time.Time
	RevokedAt time.Time
}
