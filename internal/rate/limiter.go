package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter throttles failed refresh attempts per subject using Redis
// counters, so a stolen-token replay loop cannot hammer the stores even
// before the negative cache warms up.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client. A nil client
// disables throttling.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh reports whether the subject is within the refresh attempt
// budget. Returns ErrRateLimited when the budget is exhausted.
func (l *Limiter) CheckRefresh(ctx context.Context, subjectID string) error {
	if l == nil || l.redis == nil || l.config.MaxRefreshAttempts <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, refreshKey(subjectID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}
	return nil
}

// IncrementRefresh records a failed refresh attempt for the subject.
func (l *Limiter) IncrementRefresh(ctx context.Context, subjectID string) error {
	if l == nil || l.redis == nil || l.config.MaxRefreshAttempts <= 0 {
		return nil
	}

	key := refreshKey(subjectID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.RefreshCooldownDuration).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}
	return nil
}

// ResetRefresh clears the failed-refresh counter after a successful
// rotation.
func (l *Limiter) ResetRefresh(ctx context.Context, subjectID string) error {
	if l == nil || l.redis == nil || l.config.MaxRefreshAttempts <= 0 {
		return nil
	}

	if err := l.redis.Del(ctx, refreshKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func refreshKey(subjectID string) string {
	return "ac:rl:refresh:" + subjectID
}
