package cache

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/croft-labs/authcore/internal"
)

// State is a tagged cache lookup result. A three-way tag instead of a
// nullable bool keeps "not cached" and "cached as invalid" unambiguous.
type State uint8

const (
	// StateUnknown means the cache holds nothing for the key (or the cache
	// is unavailable). Callers must fall through to the durable store.
	StateUnknown State = iota
	// StateValid means the key was recently confirmed live by the store.
	StateValid
	// StateInvalid means the key is known dead: a consumed or invalidated
	// refresh token, or a revoked jti.
	StateInvalid
)

const (
	valueValid   = "1"
	valueInvalid = "0"
)

// TokenStateCache accelerates refresh-token and revocation lookups with a
// Redis-backed key/value layer. It is best-effort and non-authoritative:
// every error degrades to StateUnknown and every write failure is swallowed
// (optionally warned about), so cache loss never fails a request and a
// stale entry can never extend a token's validity past what the durable
// store allows; callers only short-circuit on StateInvalid.
type TokenStateCache struct {
	redis  redis.UniversalClient
	prefix string
	warn   func(format string, args ...any)
}

// New builds a cache on the given client. A nil client yields a disabled
// cache: all reads return StateUnknown, all writes are no-ops.
func New(client redis.UniversalClient, prefix string, warn func(string, ...any)) *TokenStateCache {
	if prefix == "" {
		prefix = "ac"
	}
	return &TokenStateCache{redis: client, prefix: prefix, warn: warn}
}

// RefreshState reports the cached activity state of a refresh token.
func (c *TokenStateCache) RefreshState(ctx context.Context, subjectID string, hash internal.TokenHash) State {
	return c.get(ctx, c.refreshKey(subjectID, hash))
}

// SetRefreshState records the activity state of a refresh token.
func (c *TokenStateCache) SetRefreshState(ctx context.Context, subjectID string, hash internal.TokenHash, state State, ttl time.Duration) {
	c.set(ctx, c.refreshKey(subjectID, hash), state, ttl)
}

// RevocationState reports whether a jti is cached as revoked
// (StateInvalid), cached as clean (StateValid), or not cached.
func (c *TokenStateCache) RevocationState(ctx context.Context, jti string) State {
	return c.get(ctx, c.revocationKey(jti))
}

// SetRevocationState records the revocation state of a jti.
func (c *TokenStateCache) SetRevocationState(ctx context.Context, jti string, state State, ttl time.Duration) {
	c.set(ctx, c.revocationKey(jti), state, ttl)
}

func (c *TokenStateCache) get(ctx context.Context, key string) State {
	if c == nil || c.redis == nil {
		return StateUnknown
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil && c.warn != nil {
			c.warn("authcore: cache read failed: %v", err)
		}
		return StateUnknown
	}

	switch val {
	case valueValid:
		return StateValid
	case valueInvalid:
		return StateInvalid
	default:
		return StateUnknown
	}
}

func (c *TokenStateCache) set(ctx context.Context, key string, state State, ttl time.Duration) {
	if c == nil || c.redis == nil || ttl <= 0 {
		return
	}

	var val string
	switch state {
	case StateValid:
		val = valueValid
	case StateInvalid:
		val = valueInvalid
	default:
		// Unknown is represented by absence.
		if err := c.redis.Del(ctx, key).Err(); err != nil && c.warn != nil {
			c.warn("authcore: cache delete failed: %v", err)
		}
		return
	}

	if err := c.redis.Set(ctx, key, val, ttl).Err(); err != nil && c.warn != nil {
		c.warn("authcore: cache write failed: %v", err)
	}
}

func (c *TokenStateCache) refreshKey(subjectID string, hash internal.TokenHash) string {
	return c.prefix + ":rt:" + subjectID + ":" + base64.RawURLEncoding.EncodeToString(hash[:])
}

func (c *TokenStateCache) revocationKey(jti string) string {
	return c.prefix + ":rv:" + jti
}
