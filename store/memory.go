package store

import (
	"context"
	"sync"
	"time"

	"github.com/croft-labs/authcore/internal"
)

// MemoryRefresh is an in-process RefreshTokenStore. It backs tests,
// examples, and single-node deployments where durability across restarts is
// not required.
//
// Rotation atomicity is enforced with an arena of subject-keyed locks: the
// critical section covers only the subject whose tokens rotate, so rotations
// for different subjects never contend.
type MemoryRefresh struct {
	arena lockArena

	mu      sync.RWMutex
	tokens  map[string][]*RefreshToken // subjectID -> rows
	nowFunc func() time.Time
}

// NewMemoryRefresh creates an empty in-memory refresh-token store.
func NewMemoryRefresh() *MemoryRefresh {
	return &MemoryRefresh{
		tokens:  make(map[string][]*RefreshToken),
		nowFunc: time.Now,
	}
}

// SetNow overrides the store clock. Test hook.
func (m *MemoryRefresh) SetNow(now func() time.Time) { m.nowFunc = now }

// Create implements RefreshTokenStore.
func (m *MemoryRefresh) Create(ctx context.Context, token *RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.arena.lock(token.SubjectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.SubjectID] = append(m.tokens[token.SubjectID], token)
	return nil
}

// Rotate implements RefreshTokenStore. The subject lock makes the
// consume-and-fan-out sequence atomic with respect to concurrent rotations
// and logout for the same subject.
func (m *MemoryRefresh) Rotate(ctx context.Context, subjectID string, providedHash internal.TokenHash, next *RefreshToken) (*RotationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := m.arena.lock(subjectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	rows := m.tokens[subjectID]

	var matched *RefreshToken
	for _, row := range rows {
		if row.TokenHash.Equal(providedHash) {
			matched = row
			break
		}
	}

	switch {
	case matched == nil:
		return nil, ErrRefreshNotFound
	case matched.Used() || matched.Invalidated():
		return nil, ErrRefreshReused
	case !matched.Active(now):
		// Expired but never consumed. Indistinguishable from a pruned row.
		return nil, ErrRefreshNotFound
	}

	if err := matched.MarkUsed(); err != nil {
		return nil, ErrRefreshReused
	}

	outcome := &RotationOutcome{Consumed: matched, Issued: next}
	for _, row := range rows {
		if row == matched || !row.Active(now) {
			continue
		}
		if err := row.MarkInvalidated(); err != nil {
			continue
		}
		outcome.Invalidated = append(outcome.Invalidated, row)
	}

	m.tokens[subjectID] = append(m.tokens[subjectID], next)
	return outcome, nil
}

// InvalidateAllForSubject implements RefreshTokenStore.
func (m *MemoryRefresh) InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := m.arena.lock(subjectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	var retired []*RefreshToken
	for _, row := range m.tokens[subjectID] {
		if !row.Active(now) {
			continue
		}
		if err := row.MarkInvalidated(); err != nil {
			continue
		}
		retired = append(retired, row)
	}
	return retired, nil
}

// ListBySubject implements RefreshTokenStore.
func (m *MemoryRefresh) ListBySubject(ctx context.Context, subjectID string) ([]*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.tokens[subjectID]
	out := make([]*RefreshToken, len(rows))
	copy(out, rows)
	return out, nil
}

// PruneExpired implements RefreshTokenStore.
func (m *MemoryRefresh) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for subject, rows := range m.tokens {
		kept := rows[:0]
		for _, row := range rows {
			if row.ExpiresAt.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, row)
		}
		if len(kept) == 0 {
			delete(m.tokens, subject)
			continue
		}
		m.tokens[subject] = kept
	}
	return pruned, nil
}

// PruneSubject implements RefreshTokenStore.
func (m *MemoryRefresh) PruneSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	unlock := m.arena.lock(subjectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	kept := m.tokens[subjectID][:0]
	for _, row := range m.tokens[subjectID] {
		if row.ExpiresAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, row)
	}
	if len(kept) == 0 {
		delete(m.tokens, subjectID)
	} else {
		m.tokens[subjectID] = kept
	}
	return pruned, nil
}

// MemoryRevocations is an in-process RevocationStore.
type MemoryRevocations struct {
	mu      sync.RWMutex
	revoked map[string]RevokedAccessToken
	nowFunc func() time.Time
}

// NewMemoryRevocations creates an empty in-memory denylist.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		revoked: make(map[string]RevokedAccessToken),
		nowFunc: time.Now,
	}
}

// SetNow overrides the store clock. Test hook.
func (m *MemoryRevocations) SetNow(now func() time.Time) { m.nowFunc = now }

// Revoke implements RevocationStore. Re-revoking a jti keeps the original
// entry: the denylist is monotonically added to, never mutated.
func (m *MemoryRevocations) Revoke(ctx context.Context, revocation RevokedAccessToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.revoked[revocation.JTI]; exists {
		return nil
	}
	m.revoked[revocation.JTI] = revocation
	return nil
}

// IsRevoked implements RevocationStore. Entries past their copied expiry
// count as not revoked; the token is dead by expiry regardless.
func (m *MemoryRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	return m.nowFunc().Before(entry.ExpiresAt), nil
}

// PruneExpired implements RevocationStore.
func (m *MemoryRevocations) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for jti, entry := range m.revoked {
		if entry.ExpiresAt.Before(now) {
			delete(m.revoked, jti)
			pruned++
		}
	}
	return pruned, nil
}

// PruneSubject implements RevocationStore.
func (m *MemoryRevocations) PruneSubject(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for jti, entry := range m.revoked {
		if entry.SubjectID == subjectID && entry.ExpiresAt.Before(now) {
			delete(m.revoked, jti)
			pruned++
		}
	}
	return pruned, nil
}

// lockArena hands out one mutex per subject. Entries are never reclaimed;
// the per-subject footprint is a single mutex.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (a *lockArena) lock(subjectID string) (unlock func()) {
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*sync.Mutex)
	}
	l, ok := a.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[subjectID] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

var (
	_ RefreshTokenStore = (*MemoryRefresh)(nil)
	_ RevocationStore   = (*MemoryRevocations)(nil)
)
