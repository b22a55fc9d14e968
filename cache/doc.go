// Package cache is the Redis-backed accelerator in front of the durable
// stores. Negative entries (known-dead tokens) short-circuit repeated
// lookups for replayed refresh tokens and revoked jtis; positive entries
// carry a short TTL so they can never outlive what the store would allow.
package cache
