// Package ratelimit provides per-caller token bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls bucket sizing.
type Config struct {
	// Capacity is the bucket burst size in tokens.
	Capacity int
	// RefillPerSecond is the steady-state token refill rate.
	RefillPerSecond float64
}

// DefaultConfig returns the standard bucket sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:        20,
		RefillPerSecond: 10,
	}
}

// Limiter enforces a token bucket per caller key. Buckets start full
// and are created lazily on first use.
type Limiter struct {
	mu      sync.RWMutex
	cfg     Config
	buckets map[string]*rate.Limiter
}

// New creates a limiter with the given bucket sizing.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.RefillPerSecond <= 0 {
		cfg.RefillPerSecond = DefaultConfig().RefillPerSecond
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.cfg.RefillPerSecond), l.cfg.Capacity)
	l.buckets[key] = b
	return b
}

// Consume attempts to take tokens from the caller's bucket. On
// denial it leaves the bucket untouched and returns the seconds
// until enough tokens will be available.
func (l *Limiter) Consume(key string, tokens int) (allowed bool, retryAfter float64) {
	if tokens <= 0 {
		tokens = 1
	}
	b := l.bucket(key)

	now := time.Now()
	res := b.ReserveN(now, tokens)
	if !res.OK() {
		// Request exceeds bucket capacity and can never succeed.
		return false, float64(tokens-l.cfg.Capacity) / l.cfg.RefillPerSecond
	}

	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return false, delay.Seconds()
	}
	return true, 0
}

// Snapshot is a point-in-time view of one bucket for diagnostics.
type Snapshot struct {
	Key       string  `json:"key"`
	Available float64 `json:"available_tokens"`
	Capacity  int     `json:"capacity"`
}

// Snapshots returns diagnostic views for every known bucket.
func (l *Limiter) Snapshots() []Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := time.Now()
	out := make([]Snapshot, 0, len(l.buckets))
	for key, b := range l.buckets {
		out = append(out, Snapshot{
			Key:       key,
			Available: b.TokensAt(now),
			Capacity:  l.cfg.Capacity,
		})
	}
	return out
}
