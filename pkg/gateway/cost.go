package gateway

import (
	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/provider"
)

// estimateCost prices usage against the configured per-1k pricing
// table. The second return reports whether pricing was found.
func estimateCost(pricing config.PricingConfig, providerName, model string, usage provider.Usage) (Cost, bool) {
	entry, ok := pricingFor(pricing, providerName, model)
	if !ok {
		return Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return Cost{
		Currency:   "USD",
		Amount:     promptCost + completionCost,
		IsEstimate: true,
	}, true
}

func pricingFor(pricing config.PricingConfig, providerName, model string) (config.ModelPricing, bool) {
	if pricing == nil {
		return config.ModelPricing{}, false
	}
	if providerPricing, ok := pricing[providerName]; ok {
		if entry, ok := providerPricing[model]; ok {
			return entry, true
		}
		if entry, ok := providerPricing["default"]; ok {
			return entry, true
		}
	}
	return config.ModelPricing{}, false
}
