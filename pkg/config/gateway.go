package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds the orchestration pipeline configuration.
type GatewayConfig struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Strategy   string                    `yaml:"strategy,omitempty"`
	RateLimit  RateLimitConfig           `yaml:"rate_limit,omitempty"`
	Breaker    BreakerConfig             `yaml:"breaker,omitempty"`
	Dedup      DedupConfig               `yaml:"dedup,omitempty"`
	Classifier ClassifierConfig          `yaml:"classifier,omitempty"`
	RoundTable RoundTableConfig          `yaml:"round_table,omitempty"`
	Pricing    PricingConfig             `yaml:"pricing,omitempty"`
}

// ProviderConfig describes one provider's routing capabilities.
type ProviderConfig struct {
	DefaultModel string             `yaml:"default_model"`
	Priority     int                `yaml:"priority,omitempty"`
	CostTier     int                `yaml:"cost_tier,omitempty"`
	TimeoutMs    int                `yaml:"timeout_ms,omitempty"`
	Strengths    map[string]float64 `yaml:"strengths,omitempty"`
}

// RateLimitConfig sizes the per-caller token buckets.
type RateLimitConfig struct {
	Capacity        int     `yaml:"capacity,omitempty"`
	RefillPerSecond float64 `yaml:"refill_per_second,omitempty"`
}

// BreakerConfig sets per-provider circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	ResetTimeoutMs   int `yaml:"reset_timeout_ms,omitempty"`
}

// DedupConfig controls duplicate request collapsing.
type DedupConfig struct {
	TTLSeconds int `yaml:"ttl_seconds,omitempty"`
}

// ClassifierConfig controls task classification.
type ClassifierConfig struct {
	DefaultCategory     string              `yaml:"default_category,omitempty"`
	ConfidenceThreshold float64             `yaml:"confidence_threshold,omitempty"`
	RefinerProvider     string              `yaml:"refiner_provider,omitempty"`
	RefinerModel        string              `yaml:"refiner_model,omitempty"`
	CacheTTLMinutes     int                 `yaml:"cache_ttl_minutes,omitempty"`
	Triggers            map[string][]string `yaml:"triggers,omitempty"`
}

// RoundTableConfig controls multi-provider fan-out execution.
type RoundTableConfig struct {
	TimeoutMs       int               `yaml:"timeout_ms,omitempty"`
	MinResponses    int               `yaml:"min_responses,omitempty"`
	MaxParticipants int               `yaml:"max_participants,omitempty"`
	Weights         RoundTableWeights `yaml:"weights,omitempty"`
	JudgeProvider   string            `yaml:"judge_provider,omitempty"`
	JudgeModel      string            `yaml:"judge_model,omitempty"`
}

// RoundTableWeights are the scoring dimension weights. They should
// sum to 1; Normalize rescales them when they do not.
type RoundTableWeights struct {
	Relevance     float64 `yaml:"relevance,omitempty"`
	Completeness  float64 `yaml:"completeness,omitempty"`
	Efficiency    float64 `yaml:"efficiency,omitempty"`
	TaskAlignment float64 `yaml:"task_alignment,omitempty"`
}

// Normalize rescales the weights to sum to 1.
func (w *RoundTableWeights) Normalize() {
	sum := w.Relevance + w.Completeness + w.Efficiency + w.TaskAlignment
	if sum <= 0 {
		*w = DefaultGatewayConfig().RoundTable.Weights
		return
	}
	w.Relevance /= sum
	w.Completeness /= sum
	w.Efficiency /= sum
	w.TaskAlignment /= sum
}

// PricingConfig maps provider -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// LoadGatewayConfig reads gateway configuration from a YAML file.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyGatewayDefaults(&cfg)
	return &cfg, nil
}

// DefaultGatewayConfig returns the default gateway configuration.
func DefaultGatewayConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Providers: map[string]ProviderConfig{
			"anthropic": {
				DefaultModel: "claude-sonnet-4-20250514",
				Priority:     1,
				CostTier:     3,
				TimeoutMs:    60000,
				Strengths: map[string]float64{
					"reasoning":  0.95,
					"code":       0.9,
					"analysis":   0.9,
					"creative":   0.85,
					"planning":   0.85,
					"moderation": 0.9,
					"debugging":  0.85,
				},
			},
			"openai": {
				DefaultModel: "gpt-5.2-thinking",
				Priority:     2,
				CostTier:     3,
				TimeoutMs:    60000,
				Strengths: map[string]float64{
					"reasoning":     0.9,
					"code":          0.85,
					"generation":    0.9,
					"summarization": 0.85,
					"qa":            0.85,
					"extraction":    0.85,
					"optimization":  0.8,
				},
			},
			"google": {
				DefaultModel: "gemini-2.0-pro",
				Priority:     3,
				CostTier:     2,
				TimeoutMs:    60000,
				Strengths: map[string]float64{
					"search":         0.9,
					"qa":             0.85,
					"translation":    0.85,
					"classification": 0.8,
					"summarization":  0.8,
				},
			},
			"deepseek": {
				DefaultModel: "deepseek-chat",
				Priority:     4,
				CostTier:     1,
				TimeoutMs:    60000,
				Strengths: map[string]float64{
					"code":         0.85,
					"reasoning":    0.8,
					"debugging":    0.75,
					"optimization": 0.75,
				},
			},
		},
		Strategy: "priority",
		Pricing: PricingConfig{
			"anthropic": {
				"claude-sonnet-4-20250514": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
				"claude-opus-4-20250514":   {PromptPer1K: 0.015, CompletionPer1K: 0.075},
			},
			"openai": {
				"gpt-5.2-instant":  {PromptPer1K: 0.0006, CompletionPer1K: 0.0024},
				"gpt-5.2-thinking": {PromptPer1K: 0.003, CompletionPer1K: 0.012},
				"gpt-5.2-codex":    {PromptPer1K: 0.0015, CompletionPer1K: 0.006},
				"gpt-5.2-pro":      {PromptPer1K: 0.012, CompletionPer1K: 0.048},
			},
			"google": {
				"gemini-2.0-pro": {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
			},
			"deepseek": {
				"deepseek-chat":     {PromptPer1K: 0.00027, CompletionPer1K: 0.0011},
				"deepseek-coder":    {PromptPer1K: 0.00027, CompletionPer1K: 0.0011},
				"deepseek-reasoner": {PromptPer1K: 0.00055, CompletionPer1K: 0.00219},
			},
		},
	}

	applyGatewayDefaults(cfg)
	return cfg
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg == nil {
		return
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "priority"
	}
	if cfg.RateLimit.Capacity == 0 {
		cfg.RateLimit.Capacity = 20
	}
	if cfg.RateLimit.RefillPerSecond == 0 {
		cfg.RateLimit.RefillPerSecond = 10
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.ResetTimeoutMs == 0 {
		cfg.Breaker.ResetTimeoutMs = 30000
	}
	if cfg.Dedup.TTLSeconds == 0 {
		cfg.Dedup.TTLSeconds = 60
	}
	if cfg.Classifier.DefaultCategory == "" {
		cfg.Classifier.DefaultCategory = "generation"
	}
	if cfg.Classifier.ConfidenceThreshold == 0 {
		cfg.Classifier.ConfidenceThreshold = 0.65
	}
	if cfg.Classifier.CacheTTLMinutes == 0 {
		cfg.Classifier.CacheTTLMinutes = 60
	}
	if cfg.RoundTable.TimeoutMs == 0 {
		cfg.RoundTable.TimeoutMs = 90000
	}
	if cfg.RoundTable.MinResponses < 1 {
		cfg.RoundTable.MinResponses = 1
	}
	if cfg.RoundTable.MaxParticipants == 0 {
		cfg.RoundTable.MaxParticipants = 4
	}
	zero := RoundTableWeights{}
	if cfg.RoundTable.Weights == zero {
		cfg.RoundTable.Weights = RoundTableWeights{
			Relevance:     0.35,
			Completeness:  0.25,
			Efficiency:    0.15,
			TaskAlignment: 0.25,
		}
	}
	cfg.RoundTable.Weights.Normalize()
}
