package store

import (
	"context"
	"errors"
	"time"

	"github.com/croft-labs/authcore/internal"
)

// ErrRefreshNotFound is returned by Rotate when no row for the subject
// matches the provided hash (or the matching row has expired).
var ErrRefreshNotFound = errors.New("refresh token not found")

// ErrRefreshReused is returned by Rotate when the matching row exists but
// is already used or invalidated. Callers must surface this identically to
// ErrRefreshNotFound at the API boundary; the distinction exists only so
// reuse can be treated as a compromise signal internally.
var ErrRefreshReused = errors.New("refresh token reuse detected")

// ErrUnavailable wraps backend failures. Mutating operations that return it
// guarantee no partial state was committed.
var ErrUnavailable = errors.New("token store unavailable")

// RotationOutcome reports what a successful Rotate changed, so callers can
// propagate negative cache entries for every retired row.
type RotationOutcome struct {
	Consumed    *RefreshToken
	Invalidated []*RefreshToken
	Issued      *RefreshToken
}

// RefreshTokenStore is the durable registry of per-subject rotation state.
//
// Rotate is the protocol-critical operation: implementations must make the
// consume-and-fan-out step atomic per subject. Exactly one of N concurrent
// Rotate calls with the same provided hash may succeed; the rest observe
// ErrRefreshReused or ErrRefreshNotFound.
type RefreshTokenStore interface {
	// Create persists a freshly issued active row.
	Create(ctx context.Context, token *RefreshToken) error

	// Rotate consumes the active row for subjectID matching providedHash,
	// invalidates every other active row belonging to the subject, and
	// persists next as the sole active row, all as one unit. On any error
	// no state change is visible.
	Rotate(ctx context.Context, subjectID string, providedHash internal.TokenHash, next *RefreshToken) (*RotationOutcome, error)

	// InvalidateAllForSubject retires every active row for the subject and
	// returns the rows it retired.
	InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*RefreshToken, error)

	// ListBySubject returns all rows for the subject, including terminal
	// and expired ones not yet pruned.
	ListBySubject(ctx context.Context, subjectID string) ([]*RefreshToken, error)

	// PruneExpired deletes rows whose expiry passed before the cutoff.
	// Housekeeping only: Active already excludes expired rows.
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// PruneSubject deletes the subject's rows whose expiry passed before
	// the cutoff. Used by logout as best-effort housekeeping.
	PruneSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error)
}

// RevocationStore is the append-only denylist of revoked access-token jtis.
// Entries are added, queried, and pruned; never mutated.
type RevocationStore interface {
	Revoke(ctx context.Context, revocation RevokedAccessToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// PruneExpired deletes entries whose copied expiry has passed.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)

	// PruneSubject deletes the subject's already-expired entries. Used by
	// logout as best-effort housekeeping.
	PruneSubject(ctx context.Context, subjectID string, now time.Time) (int64, error)
}
