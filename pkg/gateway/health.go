package gateway

import (
	"time"

	"github.com/zen-systems/modelgate/pkg/breaker"
	"github.com/zen-systems/modelgate/pkg/dedup"
	"github.com/zen-systems/modelgate/pkg/ratelimit"
)

// HealthReport is a point-in-time diagnostic view of the gateway.
type HealthReport struct {
	Timestamp       time.Time            `json:"timestamp"`
	Providers       []ProviderHealth     `json:"providers"`
	RateLimits      []ratelimit.Snapshot `json:"rate_limits"`
	Dedup           dedup.Stats          `json:"dedup"`
	ClassifierCache CacheHealth          `json:"classifier_cache"`
}

// ProviderHealth pairs a registered provider with its breaker state.
type ProviderHealth struct {
	Name         string           `json:"name"`
	DefaultModel string           `json:"default_model"`
	Breaker      breaker.Snapshot `json:"breaker"`
}

// CacheHealth reports classification cache effectiveness.
type CacheHealth struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"ratio"`
}

// Health reports the current state of every pipeline stage.
func (g *Gateway) Health() HealthReport {
	providers := make([]ProviderHealth, 0, len(g.registry.Names()))
	for _, name := range g.registry.Names() {
		_, desc, _ := g.registry.Get(name)
		providers = append(providers, ProviderHealth{
			Name:         name,
			DefaultModel: desc.DefaultModel,
			Breaker:      g.breakers.Get(name).Snapshot(),
		})
	}

	hits, misses := g.classifier.CacheStats()
	ratio := 0.0
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return HealthReport{
		Timestamp:  time.Now().UTC(),
		Providers:  providers,
		RateLimits: g.limiter.Snapshots(),
		Dedup:      g.dedup.Stats(),
		ClassifierCache: CacheHealth{
			Hits:   hits,
			Misses: misses,
			Ratio:  ratio,
		},
	}
}
