package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
	lookups int
}

func (r *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.lookups++
	if r.err != nil {
		return false, r.err
	}
	return r.revoked[jti], nil
}

func gateDeps(now time.Time, revs *fakeRevocations, fc *fakeCache) GateDeps {
	return GateDeps{
		ParseExpired: parseStub("sub-1", "jti-1", now.Add(10*time.Minute)),
		Revocations:  revs,
		Cache:        fc,
		Now:          func() time.Time { return now },
	}
}

func TestRunGateAllowsCleanToken(t *testing.T) {
	now := time.Now()
	revs := &fakeRevocations{revoked: map[string]bool{}}
	fc := newFakeCache()
	ctx := context.Background()

	res := RunGate(ctx, "Bearer whatever", gateDeps(now, revs, fc))
	if res.Decision != GateAllow {
		t.Fatalf("decision = %v, want GateAllow", res.Decision)
	}
	if res.JTI != "jti-1" || res.FromCache {
		t.Fatalf("unexpected result: %+v", res)
	}
	// The clean verdict is cached; a second check skips the store.
	res = RunGate(ctx, "Bearer whatever", gateDeps(now, revs, fc))
	if res.Decision != GateAllow || !res.FromCache {
		t.Fatalf("second check should hit cache: %+v", res)
	}
	if revs.lookups != 1 {
		t.Fatalf("store lookups = %d, want 1", revs.lookups)
	}
}

func TestRunGateDeniesRevokedToken(t *testing.T) {
	now := time.Now()
	revs := &fakeRevocations{revoked: map[string]bool{"jti-1": true}}
	fc := newFakeCache()
	ctx := context.Background()

	res := RunGate(ctx, "Bearer whatever", gateDeps(now, revs, fc))
	if res.Decision != GateDeny || res.FromCache {
		t.Fatalf("unexpected result: %+v", res)
	}
	res = RunGate(ctx, "Bearer whatever", gateDeps(now, revs, fc))
	if res.Decision != GateDeny || !res.FromCache {
		t.Fatalf("second check should deny from cache: %+v", res)
	}
	if revs.lookups != 1 {
		t.Fatalf("store lookups = %d, want 1", revs.lookups)
	}
}

func TestRunGateFailsOpen(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	// Missing and malformed headers never reach the store.
	revs := &fakeRevocations{}
	for _, header := range []string{"", "Basic abc", "Bearer ", "token-without-scheme"} {
		res := RunGate(ctx, header, gateDeps(now, revs, newFakeCache()))
		if res.Decision != GateAllow {
			t.Fatalf("header %q: decision = %v, want GateAllow", header, res.Decision)
		}
	}
	if revs.lookups != 0 {
		t.Fatalf("store lookups = %d, want 0", revs.lookups)
	}

	// Undecodable tokens allow.
	deps := gateDeps(now, revs, newFakeCache())
	deps.ParseExpired = func(string) (*jwt.AccessClaims, error) {
		return nil, errors.New("token is malformed")
	}
	if res := RunGate(ctx, "Bearer junk", deps); res.Decision != GateAllow {
		t.Fatalf("malformed token: decision = %v, want GateAllow", res.Decision)
	}

	// Tokens without a jti allow.
	deps = gateDeps(now, revs, newFakeCache())
	deps.ParseExpired = parseStub("sub-1", "", now.Add(time.Minute))
	if res := RunGate(ctx, "Bearer whatever", deps); res.Decision != GateAllow {
		t.Fatalf("missing jti: decision = %v, want GateAllow", res.Decision)
	}

	// Store outage allows with a warning and caches nothing.
	warned := 0
	fc := newFakeCache()
	down := &fakeRevocations{err: store.ErrUnavailable}
	deps = gateDeps(now, down, fc)
	deps.Warn = func(string, ...any) { warned++ }
	res := RunGate(ctx, "Bearer whatever", deps)
	if res.Decision != GateAllow {
		t.Fatalf("store outage: decision = %v, want GateAllow", res.Decision)
	}
	if warned == 0 {
		t.Fatal("expected warn on store outage")
	}
	if len(fc.revocations) != 0 {
		t.Fatal("degraded verdict must not be cached")
	}
}

func TestRunGateClampsPositiveCacheTTL(t *testing.T) {
	// NumericDate truncates to whole seconds; align the clock so the
	// remaining-life TTL comparison is exact.
	now := time.Now().Truncate(time.Second)
	ctx := context.Background()

	// A long-lived token's "not revoked" entry is capped by the
	// configured window, not its remaining life.
	fc := newFakeCache()
	deps := gateDeps(now, &fakeRevocations{}, fc)
	deps.ParseExpired = parseStub("sub-1", "jti-1", now.Add(10*time.Hour))
	deps.CacheValidTTL = 5 * time.Minute
	if res := RunGate(ctx, "Bearer whatever", deps); res.Decision != GateAllow {
		t.Fatalf("decision = %v, want GateAllow", res.Decision)
	}
	if ttl := fc.ttls["rv:jti-1"]; ttl != 5*time.Minute {
		t.Fatalf("positive cache ttl = %v, want 5m", ttl)
	}

	// A revoked verdict stays pinned for the token's remaining life.
	fc = newFakeCache()
	deps = gateDeps(now, &fakeRevocations{revoked: map[string]bool{"jti-2": true}}, fc)
	deps.ParseExpired = parseStub("sub-1", "jti-2", now.Add(10*time.Hour))
	deps.CacheValidTTL = 5 * time.Minute
	if res := RunGate(ctx, "Bearer whatever", deps); res.Decision != GateDeny {
		t.Fatalf("decision = %v, want GateDeny", res.Decision)
	}
	if ttl := fc.ttls["rv:jti-2"]; ttl != 10*time.Hour {
		t.Fatalf("negative cache ttl = %v, want 10h", ttl)
	}
}

func TestRunGateCachedVerdictWinsOverStore(t *testing.T) {
	now := time.Now()
	ctx := context.Background()
	fc := newFakeCache()
	fc.SetRevocationState(ctx, "jti-1", cache.StateInvalid, time.Minute)

	// Even a store outage cannot override a cached denial.
	down := &fakeRevocations{err: errors.New("unreachable")}
	res := RunGate(ctx, "Bearer whatever", gateDeps(now, down, fc))
	if res.Decision != GateDeny || !res.FromCache {
		t.Fatalf("unexpected result: %+v", res)
	}
	if down.lookups != 0 {
		t.Fatal("cached denial must not reach the store")
	}
}
