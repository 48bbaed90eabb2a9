// Package dedup collapses identical in-flight requests so the
// backing work runs once and every caller shares the outcome.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// PropagatedError wraps a failure shared from the originating call so
// waiters can tell it apart from failures of their own.
type PropagatedError struct {
	Key string
	Err error
}

func (e *PropagatedError) Error() string {
	return fmt.Sprintf("deduplicated request failed: %v", e.Err)
}

func (e *PropagatedError) Unwrap() error {
	return e.Err
}

// Config controls result caching.
type Config struct {
	// TTL is how long a successful result stays servable from cache.
	TTL time.Duration
}

// DefaultConfig returns the standard cache lifetime.
func DefaultConfig() Config {
	return Config{TTL: 60 * time.Second}
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// Stats is a point-in-time view of the deduplicator.
type Stats struct {
	InFlight  int   `json:"in_flight"`
	Cached    int   `json:"cached"`
	CacheHits int64 `json:"cache_hits"`
	Collapsed int64 `json:"collapsed"`
	// OldestInFlight is the age of the longest-running flight.
	OldestInFlight time.Duration `json:"oldest_in_flight"`
}

// Group deduplicates work by canonical key. Concurrent callers with
// the same key share one execution; successful results are served
// from cache for the configured TTL afterwards.
type Group struct {
	cfg    Config
	flight singleflight.Group

	mu        sync.Mutex
	cache     map[string]cacheEntry
	inflight  map[string]time.Time
	cacheHits int64
	collapsed int64
}

// NewGroup creates an empty deduplication group.
func NewGroup(cfg Config) *Group {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Group{
		cfg:      cfg,
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]time.Time),
	}
}

// Do runs fn once per key. Callers arriving while an identical call
// is in flight block until it completes and share its outcome; a
// caller whose context ends first unblocks with its own context
// error while the work keeps running for the others. The second
// return reports whether this caller's result came from the cache or
// a collapsed in-flight call rather than a fresh execution.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	if key == "" {
		v, err := fn(ctx)
		return v, false, err
	}

	g.mu.Lock()
	if entry, ok := g.cache[key]; ok {
		if time.Now().Before(entry.expires) {
			g.cacheHits++
			g.mu.Unlock()
			return entry.value, true, nil
		}
		delete(g.cache, key)
	}
	if _, ok := g.inflight[key]; !ok {
		g.inflight[key] = time.Now()
	}
	g.mu.Unlock()

	// The work must survive the originator's cancellation so
	// collapsed waiters still get an outcome.
	workCtx := context.WithoutCancel(ctx)

	ch := g.flight.DoChan(key, func() (any, error) {
		defer func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		}()

		v, err := fn(workCtx)
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		g.cache[key] = cacheEntry{value: v, expires: time.Now().Add(g.cfg.TTL)}
		g.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.mu.Lock()
			g.collapsed++
			g.mu.Unlock()
		}
		if res.Err != nil {
			if res.Shared {
				return nil, true, &PropagatedError{Key: key, Err: res.Err}
			}
			return nil, false, res.Err
		}
		return res.Val, res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Stats returns current deduplication counters.
func (g *Group) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	cached := 0
	for _, entry := range g.cache {
		if now.Before(entry.expires) {
			cached++
		}
	}
	var oldest time.Duration
	for _, started := range g.inflight {
		if age := now.Sub(started); age > oldest {
			oldest = age
		}
	}
	return Stats{
		InFlight:       len(g.inflight),
		Cached:         cached,
		CacheHits:      g.cacheHits,
		Collapsed:      g.collapsed,
		OldestInFlight: oldest,
	}
}
