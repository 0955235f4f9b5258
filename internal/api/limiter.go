package api

import (
	"sync"
	"time"

	"courtbook/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst      = 5
	limiterIdleExpiry = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for
// longer than limiterIdleExpiry are dropped on the next sweep.
type rateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		rps:     rate.Limit(cfg.RateLimit.RPS),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *rateLimiter) enabled() bool { return l.rps > 0 }

func (l *rateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleExpiry {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *rateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleExpiry {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
