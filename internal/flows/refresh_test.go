package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/internal"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

func refreshDeps(now time.Time, s RotationStore, fc *fakeCache, limiter *fakeLimiter) RefreshDeps {
	deps := RefreshDeps{
		ParseExpired:              parseStub("sub-1", "jti-old", now.Add(-time.Minute)),
		HashToken:                 internal.HashToken,
		ValidateShape:             internal.ValidateTokenShape,
		Minter:                    testMinter(now),
		RefreshStore:              s,
		Cache:                     fc,
		FamilyInvalidationOnReuse: true,
		CacheValidTTL:             5 * time.Minute,
	}
	if limiter != nil {
		deps.RateLimiter = limiter
	}
	return deps
}

func TestRunRefreshRotates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, oldHash := seededRotationStore(now)
	fc := newFakeCache()
	limiter := &fakeLimiter{}
	ctx := context.Background()

	res := RunRefresh(ctx, "any-access", plaintext, refreshDeps(now, s, fc, limiter))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("failure %v: %v", res.Failure, res.Err)
	}
	if res.Pair.RefreshToken == plaintext {
		t.Fatal("rotation must mint a new opaque token")
	}
	if res.Pair.AccessToken != "access-sub-1" || res.SubjectID != "sub-1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Consumed token is now a negative cache entry, new token a positive one.
	if fc.RefreshState(ctx, "sub-1", oldHash) != cache.StateInvalid {
		t.Fatal("consumed token missing negative cache entry")
	}
	newHash := internal.HashToken(res.Pair.RefreshToken)
	if fc.RefreshState(ctx, "sub-1", newHash) != cache.StateValid {
		t.Fatal("issued token missing positive cache entry")
	}
	if limiter.resets != 1 {
		t.Fatalf("limiter resets = %d, want 1", limiter.resets)
	}

	// The store only lets the new token through now.
	rows, err := s.ListBySubject(ctx, "sub-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	active := 0
	for _, row := range rows {
		if row.Active(now) {
			active++
			if row.TokenHash != newHash {
				t.Fatal("active row is not the issued token")
			}
		}
	}
	if active != 1 {
		t.Fatalf("active rows = %d, want 1", active)
	}
}

func TestRunRefreshReplayIsReuse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, oldHash := seededRotationStore(now)
	fc := newFakeCache()
	limiter := &fakeLimiter{}
	ctx := context.Background()
	deps := refreshDeps(now, s, fc, limiter)

	first := RunRefresh(ctx, "any-access", plaintext, deps)
	if first.Failure != RefreshFailureNone {
		t.Fatalf("first rotation failed: %v", first.Err)
	}

	// Clear the negative entry so the replay reaches the store and is
	// classified there, not by the cache.
	fc.SetRefreshState(ctx, "sub-1", oldHash, cache.StateUnknown, 0)

	replay := RunRefresh(ctx, "any-access", plaintext, deps)
	if replay.Failure != RefreshFailureReuse {
		t.Fatalf("failure = %v, want RefreshFailureReuse", replay.Failure)
	}
	if !errors.Is(replay.Err, store.ErrRefreshReused) {
		t.Fatalf("err = %v, want ErrRefreshReused", replay.Err)
	}
	// Family invalidation retired the token issued by the first rotation.
	if replay.FamilyInvalidated != 1 {
		t.Fatalf("family invalidated = %d, want 1", replay.FamilyInvalidated)
	}
	firstHash := internal.HashToken(first.Pair.RefreshToken)
	if fc.RefreshState(ctx, "sub-1", firstHash) != cache.StateInvalid {
		t.Fatal("retired sibling missing negative cache entry")
	}
	if limiter.increments != 1 {
		t.Fatalf("limiter increments = %d, want 1", limiter.increments)
	}

	// The survivor token is dead too: another rotation with it must fail.
	after := RunRefresh(ctx, "any-access", first.Pair.RefreshToken, deps)
	if after.Failure == RefreshFailureNone {
		t.Fatal("token must not survive family invalidation")
	}
}

func TestRunRefreshReuseWithoutFamilyInvalidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, oldHash := seededRotationStore(now)
	fc := newFakeCache()
	ctx := context.Background()
	deps := refreshDeps(now, s, fc, nil)
	deps.FamilyInvalidationOnReuse = false

	first := RunRefresh(ctx, "any-access", plaintext, deps)
	if first.Failure != RefreshFailureNone {
		t.Fatalf("first rotation failed: %v", first.Err)
	}
	fc.SetRefreshState(ctx, "sub-1", oldHash, cache.StateUnknown, 0)

	replay := RunRefresh(ctx, "any-access", plaintext, deps)
	if replay.Failure != RefreshFailureReuse {
		t.Fatalf("failure = %v, want RefreshFailureReuse", replay.Failure)
	}
	if replay.FamilyInvalidated != 0 {
		t.Fatalf("family invalidated = %d, want 0", replay.FamilyInvalidated)
	}

	// With fan-out disabled the current token keeps working.
	after := RunRefresh(ctx, "any-access", first.Pair.RefreshToken, deps)
	if after.Failure != RefreshFailureNone {
		t.Fatalf("current token must survive: %v: %v", after.Failure, after.Err)
	}
}

func TestRunRefreshUnknownToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _, _ := seededRotationStore(now)
	fc := newFakeCache()
	limiter := &fakeLimiter{}
	ctx := context.Background()

	bogus, bogusHash, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	res := RunRefresh(ctx, "any-access", bogus, refreshDeps(now, s, fc, limiter))
	if res.Failure != RefreshFailureNotFound {
		t.Fatalf("failure = %v, want RefreshFailureNotFound", res.Failure)
	}
	if fc.RefreshState(ctx, "sub-1", bogusHash) != cache.StateInvalid {
		t.Fatal("unknown token missing negative cache entry")
	}
	if limiter.increments != 1 {
		t.Fatalf("limiter increments = %d, want 1", limiter.increments)
	}
}

func TestRunRefreshNegativeCacheShortCircuits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, hash := seededRotationStore(now)
	fc := newFakeCache()
	ctx := context.Background()

	fc.SetRefreshState(ctx, "sub-1", hash, cache.StateInvalid, time.Hour)

	res := RunRefresh(ctx, "any-access", plaintext, refreshDeps(now, s, fc, nil))
	if res.Failure != RefreshFailureNegativeCache {
		t.Fatalf("failure = %v, want RefreshFailureNegativeCache", res.Failure)
	}
	// The store row was never touched.
	rows, _ := s.ListBySubject(ctx, "sub-1")
	if len(rows) != 1 || !rows[0].Active(now) {
		t.Fatal("negative cache hit must not reach the store")
	}
}

func TestRunRefreshMalformedShape(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _, _ := seededRotationStore(now)
	limiter := &fakeLimiter{}

	res := RunRefresh(context.Background(), "any-access", "not base64!!", refreshDeps(now, s, newFakeCache(), limiter))
	if res.Failure != RefreshFailureNotFound {
		t.Fatalf("failure = %v, want RefreshFailureNotFound", res.Failure)
	}
	if limiter.increments != 1 {
		t.Fatalf("limiter increments = %d, want 1", limiter.increments)
	}
}

func TestRunRefreshRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, _ := seededRotationStore(now)
	limiter := &fakeLimiter{limited: true}

	res := RunRefresh(context.Background(), "any-access", plaintext, refreshDeps(now, s, newFakeCache(), limiter))
	if res.Failure != RefreshFailureRateLimited {
		t.Fatalf("failure = %v, want RefreshFailureRateLimited", res.Failure)
	}
	if res.SubjectID != "sub-1" {
		t.Fatalf("subject = %q", res.SubjectID)
	}
}

func TestRunRefreshLimiterOutageFailsOpen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, _ := seededRotationStore(now)
	limiter := &fakeLimiter{checkErr: errors.New("redis down")}
	warned := 0

	deps := refreshDeps(now, s, newFakeCache(), limiter)
	deps.Warn = func(string, ...any) { warned++ }

	res := RunRefresh(context.Background(), "any-access", plaintext, deps)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("limiter outage must not block rotation: %v: %v", res.Failure, res.Err)
	}
	if warned == 0 {
		t.Fatal("expected warn on limiter outage")
	}
}

func TestRunRefreshDecodeAndPrincipalFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, plaintext, _ := seededRotationStore(now)

	badParse := refreshDeps(now, s, newFakeCache(), nil)
	badParse.ParseExpired = func(string) (*jwt.AccessClaims, error) {
		return nil, errors.New("token is malformed")
	}
	res := RunRefresh(context.Background(), "garbage", plaintext, badParse)
	if res.Failure != RefreshFailureDecode {
		t.Fatalf("failure = %v, want RefreshFailureDecode", res.Failure)
	}

	noUID := refreshDeps(now, s, newFakeCache(), nil)
	noUID.ParseExpired = parseStub("", "jti-old", now)
	res = RunRefresh(context.Background(), "any-access", plaintext, noUID)
	if res.Failure != RefreshFailurePrincipal {
		t.Fatalf("failure = %v, want RefreshFailurePrincipal", res.Failure)
	}
}
