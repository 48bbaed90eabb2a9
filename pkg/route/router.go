// Package route ranks healthy providers for a task category under a
// selection strategy.
package route

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zen-systems/modelgate/pkg/breaker"
	"github.com/zen-systems/modelgate/pkg/provider"
)

// Strategy selects how eligible providers are ordered.
type Strategy string

const (
	// StrategyPriority orders by configured provider priority.
	StrategyPriority Strategy = "priority"
	// StrategyCost orders by cost tier, cheapest first.
	StrategyCost Strategy = "cost"
	// StrategyLatency orders by observed average latency.
	StrategyLatency Strategy = "latency"
	// StrategyRoundRobin rotates through eligible providers.
	StrategyRoundRobin Strategy = "round_robin"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPriority, StrategyCost, StrategyLatency, StrategyRoundRobin:
		return Strategy(s), nil
	case "":
		return StrategyPriority, nil
	default:
		return "", fmt.Errorf("unknown routing strategy %q", s)
	}
}

// Candidate is a provider ranked for invocation.
type Candidate struct {
	Provider   provider.Provider
	Descriptor provider.Descriptor
	Strength   float64
}

// Router plans ordered provider candidates, excluding providers whose
// circuit breaker is open.
type Router struct {
	registry *provider.Registry
	breakers *breaker.Registry
	latency  *latencyTracker
	cursor   atomic.Uint64
}

// New creates a router over the given provider and breaker registries.
func New(registry *provider.Registry, breakers *breaker.Registry) *Router {
	return &Router{
		registry: registry,
		breakers: breakers,
		latency:  newLatencyTracker(),
	}
}

// Plan returns candidates for a category in invocation order. forced
// restricts the plan to a single named provider; it still honors the
// provider's breaker.
func (r *Router) Plan(category string, strategy Strategy, forced string) ([]Candidate, error) {
	if forced != "" {
		p, desc, ok := r.registry.Get(forced)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", forced)
		}
		if r.breakers.Get(forced).State() == breaker.Open {
			return nil, nil
		}
		return []Candidate{{Provider: p, Descriptor: desc, Strength: desc.Strength(category)}}, nil
	}

	var candidates []Candidate
	for _, name := range r.registry.Names() {
		if r.breakers.Get(name).State() == breaker.Open {
			continue
		}
		p, desc, _ := r.registry.Get(name)
		candidates = append(candidates, Candidate{
			Provider:   p,
			Descriptor: desc,
			Strength:   desc.Strength(category),
		})
	}

	r.order(candidates, strategy)
	return candidates, nil
}

func (r *Router) order(candidates []Candidate, strategy Strategy) {
	switch strategy {
	case StrategyCost:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Descriptor.CostTier != candidates[j].Descriptor.CostTier {
				return candidates[i].Descriptor.CostTier < candidates[j].Descriptor.CostTier
			}
			return candidates[i].Strength > candidates[j].Strength
		})
	case StrategyLatency:
		sort.SliceStable(candidates, func(i, j int) bool {
			li, iok := r.latency.average(candidates[i].Descriptor.Name)
			lj, jok := r.latency.average(candidates[j].Descriptor.Name)
			// Unmeasured providers sort first so they get sampled.
			if iok != jok {
				return !iok
			}
			if iok && li != lj {
				return li < lj
			}
			return candidates[i].Strength > candidates[j].Strength
		})
	case StrategyRoundRobin:
		if len(candidates) > 1 {
			offset := int(r.cursor.Add(1)-1) % len(candidates)
			rotated := make([]Candidate, 0, len(candidates))
			rotated = append(rotated, candidates[offset:]...)
			rotated = append(rotated, candidates[:offset]...)
			copy(candidates, rotated)
		}
	default: // StrategyPriority
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Descriptor.Priority != candidates[j].Descriptor.Priority {
				return candidates[i].Descriptor.Priority < candidates[j].Descriptor.Priority
			}
			return candidates[i].Strength > candidates[j].Strength
		})
	}
}

// Allow consumes a breaker admission for the named provider. It must
// be called immediately before invocation; half-open breakers admit
// one trial at a time.
func (r *Router) Allow(name string) bool {
	return r.breakers.Get(name).Allow()
}

// ReportSuccess records a successful invocation and its latency.
func (r *Router) ReportSuccess(name string, d time.Duration) {
	r.breakers.Get(name).ReportSuccess()
	r.latency.observe(name, d)
}

// ReportFailure records a failed invocation.
func (r *Router) ReportFailure(name string) {
	r.breakers.Get(name).ReportFailure()
}
