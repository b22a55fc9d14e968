// Package authcore manages the full lifecycle of authentication tokens:
// short-lived signed access tokens paired with opaque, single-use refresh
// tokens.
//
// # Model
//
// Login verifies credentials through a caller-supplied
// [CredentialVerifier] and issues a pair. Refresh consumes the presented
// refresh token atomically, invalidates every other active token the
// subject holds, and issues a new pair; under concurrent refreshes for
// one subject exactly one caller wins. Replay of an already consumed
// token is treated as theft and, by default, retires the subject's whole
// token family. Logout invalidates all refresh tokens and denylists the
// access token's jti until its natural expiry.
//
// Access tokens stay self-contained; [Engine.Authorize] consults only the
// revocation denylist and fails open so a degraded backend never locks
// out valid tokens. [Engine.Validate] layers the denylist over full
// signature and expiry verification.
//
// # Assembly
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithStores(refreshStore, revocationStore).
//		WithCredentialVerifier(verifier).
//		Build()
//
// Stores default to in-memory implementations; production deployments
// wire the postgres backends from [github.com/croft-labs/authcore/store/postgres].
// Redis backs the optional token-state cache and refresh throttle.
package authcore
