package route

import (
	"sync"
	"time"
)

// latencyTracker keeps an exponentially weighted moving average of
// invocation latency per provider.
type latencyTracker struct {
	mu    sync.RWMutex
	alpha float64
	avg   map[string]time.Duration
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{alpha: 0.3, avg: make(map[string]time.Duration)}
}

func (t *latencyTracker) observe(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.avg[name]
	if !ok {
		t.avg[name] = d
		return
	}
	t.avg[name] = time.Duration(t.alpha*float64(d) + (1-t.alpha)*float64(prev))
}

// average returns the tracked latency and whether any samples exist.
func (t *latencyTracker) average(name string) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.avg[name]
	return d, ok
}
