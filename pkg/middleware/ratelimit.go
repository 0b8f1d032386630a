package middleware

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// RateLimitConfig defines a fixed window rate limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultLoginRateLimitConfig allows ten login attempts per minute per client
func DefaultLoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the window resets
	RetryAfter time.Duration
}

// Limiter counts hits per key
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter is a process-local fixed window limiter. Keys are held in an
// expiring LRU so idle clients do not accumulate.
type MemoryLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	windows *lru.LRU[string, *window]
}

// NewMemoryLimiter creates a memory limiter tracking at most size keys
func NewMemoryLimiter(config RateLimitConfig, size int) *MemoryLimiter {
	if size <= 0 {
		size = 10000
	}
	return &MemoryLimiter{
		config:  config,
		now:     time.Now,
		windows: lru.NewLRU[string, *window](size, nil, config.WindowDuration),
	}
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows.Get(key)
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.config.WindowDuration)}
		l.windows.Add(key, w)
	}
	w.count++

	return decide(l.config, int64(w.count), w.reset.Sub(now)), nil
}

// Reset clears the window for key
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows.Remove(key)
}

func decide(config RateLimitConfig, count int64, ttl time.Duration) Decision {
	remaining := config.RequestsPerWindow - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if ttl <= 0 {
		ttl = config.WindowDuration
	}
	return Decision{
		Allowed:    count <= int64(config.RequestsPerWindow),
		Limit:      config.RequestsPerWindow,
		Remaining:  remaining,
		RetryAfter: ttl,
	}
}

// FallbackLimiter consults primary and switches to fallback for any check
// where primary returns an error
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
	onError  func(error)
}

// NewFallbackLimiter creates a fallback limiter. onError may be nil.
func NewFallbackLimiter(primary, fallback Limiter, onError func(error)) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, fallback: fallback, onError: onError}
}

// Allow implements Limiter
func (l *FallbackLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	decision, err := l.primary.Allow(ctx, key)
	if err == nil {
		return decision, nil
	}
	if l.onError != nil {
		l.onError(err)
	}
	return l.fallback.Allow(ctx, key)
}
