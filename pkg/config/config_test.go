package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultGatewayConfig(t *testing.T) {
	cfg := DefaultGatewayConfig()

	if len(cfg.Providers) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(cfg.Providers))
	}
	if cfg.Strategy != "priority" {
		t.Fatalf("expected priority strategy, got %s", cfg.Strategy)
	}
	if cfg.RateLimit.Capacity != 20 || cfg.RateLimit.RefillPerSecond != 10 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeoutMs != 30000 {
		t.Fatalf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if cfg.Dedup.TTLSeconds != 60 {
		t.Fatalf("unexpected dedup default: %+v", cfg.Dedup)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.65 {
		t.Fatalf("unexpected classifier threshold: %f", cfg.Classifier.ConfidenceThreshold)
	}

	w := cfg.RoundTable.Weights
	sum := w.Relevance + w.Completeness + w.Efficiency + w.TaskAlignment
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("round table weights should sum to 1, got %f", sum)
	}
}

func TestLoadGatewayConfig(t *testing.T) {
	yaml := `
providers:
  anthropic:
    default_model: claude-sonnet-4-20250514
    priority: 1
    cost_tier: 3
    strengths:
      reasoning: 0.95
strategy: cost
rate_limit:
  capacity: 5
  refill_per_second: 2
breaker:
  failure_threshold: 3
round_table:
  min_responses: 2
  weights:
    relevance: 2
    completeness: 1
    efficiency: 1
    task_alignment: 1
`
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Strategy != "cost" {
		t.Fatalf("expected strategy cost, got %s", cfg.Strategy)
	}
	if cfg.RateLimit.Capacity != 5 {
		t.Fatalf("expected capacity 5, got %d", cfg.RateLimit.Capacity)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Fatalf("expected threshold 3, got %d", cfg.Breaker.FailureThreshold)
	}
	// Unset fields fall back to defaults.
	if cfg.Breaker.ResetTimeoutMs != 30000 {
		t.Fatalf("expected default reset timeout, got %d", cfg.Breaker.ResetTimeoutMs)
	}
	if cfg.RoundTable.MinResponses != 2 {
		t.Fatalf("expected min responses 2, got %d", cfg.RoundTable.MinResponses)
	}
	// Oversized weights get normalized.
	if math.Abs(cfg.RoundTable.Weights.Relevance-0.4) > 1e-9 {
		t.Fatalf("expected normalized relevance 0.4, got %f", cfg.RoundTable.Weights.Relevance)
	}

	p, ok := cfg.Providers["anthropic"]
	if !ok {
		t.Fatal("expected anthropic provider")
	}
	if p.Strengths["reasoning"] != 0.95 {
		t.Fatalf("expected strength 0.95, got %f", p.Strengths["reasoning"])
	}
}

func TestNegativeMinResponsesClamped(t *testing.T) {
	yaml := `
round_table:
  min_responses: -3
`
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RoundTable.MinResponses != 1 {
		t.Fatalf("expected min responses clamped to 1, got %d", cfg.RoundTable.MinResponses)
	}
}

func TestLoadGatewayConfigMissingFile(t *testing.T) {
	if _, err := LoadGatewayConfig("/nonexistent/gateway.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	yaml := "api_keys:\n  anthropic: from-file\n  openai: file-openai\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := baseConfig(dir)
	if cfg.AnthropicAPIKey != "from-env" {
		t.Fatalf("env var should win, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "file-openai" {
		t.Fatalf("file value should apply when env unset, got %q", cfg.OpenAIAPIKey)
	}
}

func TestHasProvider(t *testing.T) {
	cfg := &Config{AnthropicAPIKey: "key"}
	if !cfg.HasProvider("anthropic") {
		t.Fatal("expected anthropic to be configured")
	}
	if cfg.HasProvider("openai") {
		t.Fatal("openai should not be configured")
	}
	if cfg.HasProvider("unknown") {
		t.Fatal("unknown provider should not be configured")
	}
}
