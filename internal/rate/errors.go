package rate

import "errors"

var (
	// ErrRateLimited is returned when a subject exhausts its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
