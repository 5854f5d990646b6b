package limiters

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is the entry count above which idle buckets are pruned.
const sweepThreshold = 1024

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is a per-key token bucket holding MaxAttempts tokens that
// refill over Cooldown. Each failure spends one token.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewLocalLimiter creates an in-process limiter. now may be nil.
func NewLocalLimiter(cfg Config, now func() time.Time) *LocalLimiter {
	cfg = cfg.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(cfg.MaxAttempts) / cfg.Cooldown.Seconds()),
		burst:   cfg.MaxAttempts,
		idle:    cfg.Cooldown,
		now:     now,
	}
}

func (l *LocalLimiter) get(key string, now time.Time) *rate.Limiter {
	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	if len(l.buckets) >= sweepThreshold {
		for k, b := range l.buckets {
			// A bucket idle for a full cooldown has refilled and can be dropped.
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

func (l *LocalLimiter) Check(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		return nil
	}
	b.lastSeen = now
	if b.limiter.TokensAt(now) < 1 {
		return ErrRateLimited
	}
	return nil
}

func (l *LocalLimiter) RecordFailure(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	lim := l.get(key, now)
	lim.AllowN(now, 1)
	if lim.TokensAt(now) < 1 {
		return ErrRateLimited
	}
	return nil
}

func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}
