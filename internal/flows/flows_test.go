package flows

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/internal"
	"github.com/croft-labs/authcore/internal/rate"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// fakeCache is an in-process StateCache that records writes with their
// TTLs so tests can assert on cache traffic.
type fakeCache struct {
	refresh     map[string]cache.State
	revocations map[string]cache.State
	ttls        map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		refresh:     make(map[string]cache.State),
		revocations: make(map[string]cache.State),
		ttls:        make(map[string]time.Duration),
	}
}

func refreshCacheKey(subjectID string, hash internal.TokenHash) string {
	return subjectID + ":" + hex.EncodeToString(hash[:])
}

func (c *fakeCache) RefreshState(_ context.Context, subjectID string, hash internal.TokenHash) cache.State {
	return c.refresh[refreshCacheKey(subjectID, hash)]
}

func (c *fakeCache) SetRefreshState(_ context.Context, subjectID string, hash internal.TokenHash, state cache.State, ttl time.Duration) {
	key := refreshCacheKey(subjectID, hash)
	if state == cache.StateUnknown {
		delete(c.refresh, key)
		return
	}
	c.refresh[key] = state
	c.ttls[key] = ttl
}

func (c *fakeCache) RevocationState(_ context.Context, jti string) cache.State {
	return c.revocations[jti]
}

func (c *fakeCache) SetRevocationState(_ context.Context, jti string, state cache.State, ttl time.Duration) {
	if state == cache.StateUnknown {
		delete(c.revocations, jti)
		return
	}
	c.revocations[jti] = state
	c.ttls["rv:"+jti] = ttl
}

// fakeLimiter counts limiter calls and can be primed to reject or fail.
type fakeLimiter struct {
	checkErr   error
	limited    bool
	increments int
	resets     int
}

func (l *fakeLimiter) CheckRefresh(context.Context, string) error {
	if l.limited {
		return rate.ErrRateLimited
	}
	return l.checkErr
}

func (l *fakeLimiter) IncrementRefresh(context.Context, string) error {
	l.increments++
	return nil
}

func (l *fakeLimiter) ResetRefresh(context.Context, string) error {
	l.resets++
	return nil
}

// testMinter builds a deterministic PairMinter over a fixed clock. Opaque
// token generation is real; signing is a stub that encodes the subject.
func testMinter(now time.Time) PairMinter {
	seq := 0
	return PairMinter{
		SignAccess: func(sub jwt.Subject) (string, string, time.Time, error) {
			return "access-" + sub.ID, "jti-" + sub.ID, now.Add(15 * time.Minute), nil
		},
		NewOpaqueToken: internal.NewRefreshToken,
		NewRowID: func() string {
			seq++
			return fmt.Sprintf("row-%d", seq)
		},
		RefreshTokenTTL: 30 * 24 * time.Hour,
		Now:             func() time.Time { return now },
	}
}

// parseStub returns a ParseExpired that yields fixed claims for any token.
func parseStub(uid, jti string, expiresAt time.Time) func(string) (*jwt.AccessClaims, error) {
	return func(string) (*jwt.AccessClaims, error) {
		return &jwt.AccessClaims{
			UID: uid,
			RegisteredClaims: gojwt.RegisteredClaims{
				ID:        jti,
				ExpiresAt: gojwt.NewNumericDate(expiresAt),
			},
		}, nil
	}
}

// seededRotationStore wraps MemoryRefresh with a deterministic clock and a
// pre-created active row so refresh tests start from a real rotation state.
func seededRotationStore(now time.Time) (*store.MemoryRefresh, string, internal.TokenHash) {
	s := store.NewMemoryRefresh()
	s.SetNow(func() time.Time { return now })

	plaintext, hash, err := internal.NewRefreshToken()
	if err != nil {
		panic(err)
	}
	row := store.NewRefreshToken("seed-row", "sub-1", hash, now, 30*24*time.Hour)
	if err := s.Create(context.Background(), row); err != nil {
		panic(err)
	}
	return s, plaintext, hash
}
