// Package breaker implements a per-provider circuit breaker with
// closed, open, and half-open states.
package breaker

import (
	"sync"
	"time"
)

// State is the current position of a breaker.
type State int

const (
	// Closed passes traffic through and counts consecutive failures.
	Closed State = iota
	// Open rejects traffic until the reset timeout has elapsed.
	Open
	// HalfOpen admits a single trial invocation.
	HalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// trips a closed breaker open.
	FailureThreshold int
	// ResetTimeout is how long an open breaker waits before
	// admitting a trial invocation.
	ResetTimeout time.Duration
}

// DefaultConfig returns the standard production thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// TransitionFunc observes state changes.
type TransitionFunc func(name string, from, to State)

// Breaker tracks the health of a single provider.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
	onTransition  TransitionFunc
}

// New creates a closed breaker.
func New(name string, cfg Config, onTransition TransitionFunc) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	return &Breaker{name: name, cfg: cfg, state: Closed, onTransition: onTransition}
}

// transitionLocked moves the breaker and notifies the listener.
// Callers must hold mu.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = time.Now()
		b.trialInFlight = false
	case HalfOpen:
		b.trialInFlight = false
	case Closed:
		b.failures = 0
		b.trialInFlight = false
	}
	if b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}

// maybeHalfOpenLocked promotes an expired open breaker to half-open.
// Callers must hold mu.
func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.transitionLocked(HalfOpen)
	}
}

// Allow reports whether an invocation may proceed. In half-open it
// admits exactly one trial; concurrent callers are rejected until the
// trial reports an outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// ReportSuccess records a successful invocation. It resets the
// failure count when closed and closes the breaker after a
// successful half-open trial.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.transitionLocked(Closed)
	}
}

// ReportFailure records a failed invocation. It trips a closed
// breaker once the threshold is reached and reopens a half-open
// breaker immediately.
func (b *Breaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(Open)
		}
	case HalfOpen:
		b.transitionLocked(Open)
	}
}

// State returns the current state, promoting an expired open breaker
// to half-open first. It never consumes the half-open trial slot.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Snapshot is a point-in-time view of a breaker for diagnostics.
type Snapshot struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Failures int       `json:"consecutive_failures"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Snapshot returns the breaker's diagnostic view.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	snap := Snapshot{
		Name:     b.name,
		State:    b.state.String(),
		Failures: b.failures,
	}
	if b.state != Closed {
		snap.OpenedAt = b.openedAt
	}
	return snap
}

// Registry manages one breaker per provider, created lazily.
type Registry struct {
	mu           sync.RWMutex
	cfg          Config
	breakers     map[string]*Breaker
	onTransition TransitionFunc
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, onTransition TransitionFunc) *Registry {
	return &Registry{
		cfg:          cfg,
		breakers:     make(map[string]*Breaker),
		onTransition: onTransition,
	}
}

// Get returns the breaker for a provider, creating it closed on
// first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.cfg, r.onTransition)
	r.breakers[name] = b
	return b
}

// Snapshots returns diagnostic views for every known breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
