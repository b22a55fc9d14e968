// Package rate throttles failed refresh attempts with Redis counters. It
// complements the negative cache: the cache short-circuits known-dead
// tokens, the limiter caps how fast an attacker can probe unknown ones.
package rate
