package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = time.Minute
)

var (
	ErrRateLimited = errors.New("two-factor attempts rate limited")
	ErrUnavailable = errors.New("two-factor limiter unavailable")
)

// Limiter counts failed attempts per key.
type Limiter interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Config holds the attempt budget. Zero values fall back to 5 attempts per minute.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

// AttemptLimiter is a Redis fixed-window failure counter. The window opens on
// the first failure and the counter expires after Cooldown.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewAttemptLimiter creates a Redis-backed limiter. Keys are prefix+key.
func NewAttemptLimiter(redisClient redis.UniversalClient, prefix string, cfg Config) *AttemptLimiter {
	cfg = cfg.withDefaults()
	if prefix == "" {
		prefix = "gg:2fa:att:"
	}
	return &AttemptLimiter{
		redis:       redisClient,
		prefix:      prefix,
		maxAttempts: int64(cfg.MaxAttempts),
		cooldown:    cfg.Cooldown,
	}
}

func (l *AttemptLimiter) key(key string) string {
	return l.prefix + key
}

func (l *AttemptLimiter) Check(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(key), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
