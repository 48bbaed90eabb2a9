package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/observe"
	"github.com/zen-systems/modelgate/pkg/provider"
)

func testGatewayConfig() *config.GatewayConfig {
	cfg := config.DefaultGatewayConfig()
	cfg.Breaker.ResetTimeoutMs = 60000
	return cfg
}

func twoProviderRegistry(alpha, beta *provider.Mock) *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(alpha, provider.Descriptor{
		Name:         "alpha",
		DefaultModel: "alpha-1",
		Priority:     1,
		CostTier:     2,
		Strengths:    map[string]float64{"reasoning": 0.9},
	})
	reg.Register(beta, provider.Descriptor{
		Name:         "beta",
		DefaultModel: "beta-1",
		Priority:     2,
		CostTier:     1,
		Strengths:    map[string]float64{"reasoning": 0.8},
	})
	return reg
}

func newTestGateway(t *testing.T, cfg *config.GatewayConfig, reg *provider.Registry) *Gateway {
	t.Helper()
	g, err := New(cfg, reg, nil, observe.Nop())
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return g
}

func TestFastUsesTopCandidate(t *testing.T) {
	alpha := provider.NewMock("alpha").WithFallback("alpha answer")
	beta := provider.NewMock("beta").WithFallback("beta answer")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	resp, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
		Mode:     ModeFast,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "alpha" {
		t.Fatalf("expected alpha, got %s", resp.Provider)
	}
	if resp.Model != "alpha-1" {
		t.Fatalf("expected default model alpha-1, got %s", resp.Model)
	}
	if beta.Calls() != 0 {
		t.Fatalf("fast mode must not touch fallback providers, beta called %d times", beta.Calls())
	}
	if resp.CorrelationID == "" {
		t.Fatal("expected a generated correlation id")
	}
}

func TestFastHasNoFallback(t *testing.T) {
	alpha := provider.NewMock("alpha").WithError(errors.New("backend down"))
	beta := provider.NewMock("beta")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	_, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
		Mode:     ModeFast,
	})
	if CodeOf(err) != CodeAllProvidersExhausted {
		t.Fatalf("expected ALL_PROVIDERS_EXHAUSTED, got %v", err)
	}
	if beta.Calls() != 0 {
		t.Fatal("fast mode must not fall back")
	}
}

func TestBalancedFallsBack(t *testing.T) {
	alpha := provider.NewMock("alpha").WithError(&provider.Error{Provider: "alpha", Status: 503, Err: errors.New("backend down")})
	beta := provider.NewMock("beta").WithFallback("beta answer")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	resp, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
		Mode:     ModeBalanced,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "beta" {
		t.Fatalf("expected fallback to beta, got %s", resp.Provider)
	}
	if len(resp.Attempts) != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", len(resp.Attempts))
	}
	if resp.Attempts[0].Error == "" {
		t.Fatal("first attempt should record the failure")
	}
}

func TestBalancedExhaustsChain(t *testing.T) {
	alpha := provider.NewMock("alpha").WithError(&provider.Error{Provider: "alpha", Status: 503, Err: errors.New("backend down")})
	beta := provider.NewMock("beta").WithError(&provider.Error{Provider: "beta", Status: 502, Err: errors.New("also down")})
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	_, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
	})
	if CodeOf(err) != CodeAllProvidersExhausted {
		t.Fatalf("expected ALL_PROVIDERS_EXHAUSTED, got %v", err)
	}
	if alpha.Calls() != 1 || beta.Calls() != 1 {
		t.Fatalf("transient failures should walk the whole chain, got %d/%d calls", alpha.Calls(), beta.Calls())
	}
}

func TestBalancedStopsOnNonTransientError(t *testing.T) {
	alpha := provider.NewMock("alpha").WithError(&provider.Error{Provider: "alpha", Status: 400, Err: errors.New("bad request")})
	beta := provider.NewMock("beta").WithFallback("beta answer")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	_, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
	})
	if CodeOf(err) != CodeAllProvidersExhausted {
		t.Fatalf("expected ALL_PROVIDERS_EXHAUSTED, got %v", err)
	}
	if beta.Calls() != 0 {
		t.Fatal("a non-retryable failure must end the fallback chain")
	}
}

func TestRateLimitDenial(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.RateLimit.Capacity = 2
	cfg.RateLimit.RefillPerSecond = 0.5
	alpha := provider.NewMock("alpha")
	beta := provider.NewMock("beta")
	g := newTestGateway(t, cfg, twoProviderRegistry(alpha, beta))

	for i := 0; i < 2; i++ {
		if _, err := g.Submit(context.Background(), Request{
			CallerID: "burst",
			Prompt:   "why does the tide turn",
		}); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	_, err := g.Submit(context.Background(), Request{
		CallerID: "burst",
		Prompt:   "why does the tide turn",
	})
	var ge *Error
	if !errors.As(err, &ge) || ge.Code != CodeRateLimited {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %v", err)
	}
	if ge.RetryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %f", ge.RetryAfter)
	}

	// Other callers keep their own budget.
	if _, err := g.Submit(context.Background(), Request{
		CallerID: "calm",
		Prompt:   "why does the tide turn",
	}); err != nil {
		t.Fatalf("independent caller should pass: %v", err)
	}
}

func TestDuplicateRequestsCollapse(t *testing.T) {
	alpha := provider.NewMock("alpha").WithDelay(50 * time.Millisecond).WithFallback("shared answer")
	beta := provider.NewMock("beta")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	req := Request{CallerID: "tester", Prompt: "why does the tide turn"}

	const callers = 4
	var wg sync.WaitGroup
	responses := make([]*Response, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := g.Submit(context.Background(), req)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	if alpha.Calls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", alpha.Calls())
	}
	deduplicated := 0
	for _, resp := range responses {
		if resp == nil {
			t.Fatal("missing response")
		}
		if resp.Deduplicated {
			deduplicated++
		}
	}
	if deduplicated == 0 {
		t.Fatal("expected collapsed callers to be marked deduplicated")
	}
}

func TestDedupServesCachedResult(t *testing.T) {
	alpha := provider.NewMock("alpha").WithFallback("cached answer")
	beta := provider.NewMock("beta")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	req := Request{CallerID: "tester", Prompt: "why does the tide turn"}

	first, err := g.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := g.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if alpha.Calls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", alpha.Calls())
	}
	if first.Deduplicated {
		t.Fatal("first response must not be marked deduplicated")
	}
	if !second.Deduplicated {
		t.Fatal("second response should be served from the dedup cache")
	}
	if second.Content != first.Content {
		t.Fatal("cached response should carry the original content")
	}
	if second.CorrelationID == first.CorrelationID {
		t.Fatal("each caller keeps its own correlation id")
	}
}

func TestDifferentParametersAreNotDeduplicated(t *testing.T) {
	alpha := provider.NewMock("alpha")
	beta := provider.NewMock("beta")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	g.Submit(context.Background(), Request{CallerID: "t", Prompt: "why does the tide turn"})
	g.Submit(context.Background(), Request{CallerID: "t", Prompt: "why does the tide turn", Temperature: 0.9})

	if alpha.Calls() != 2 {
		t.Fatalf("different parameters must execute separately, got %d calls", alpha.Calls())
	}
}

func TestBreakerTripsAndExcludesProvider(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Breaker.FailureThreshold = 2
	alpha := provider.NewMock("alpha").WithError(&provider.Error{Provider: "alpha", Status: 503, Err: errors.New("backend down")})
	beta := provider.NewMock("beta").WithFallback("beta answer")
	g := newTestGateway(t, cfg, twoProviderRegistry(alpha, beta))

	// Each failure counts toward the threshold; fallback succeeds.
	for i, prompt := range []string{"first distinct prompt", "second distinct prompt"} {
		resp, err := g.Submit(context.Background(), Request{CallerID: "t", Prompt: prompt})
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if resp.Provider != "beta" {
			t.Fatalf("request %d: expected beta, got %s", i+1, resp.Provider)
		}
	}
	if alpha.Calls() != 2 {
		t.Fatalf("expected 2 alpha attempts before tripping, got %d", alpha.Calls())
	}

	// Breaker is now open; alpha never gets planned.
	resp, err := g.Submit(context.Background(), Request{CallerID: "t", Prompt: "third distinct prompt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alpha.Calls() != 2 {
		t.Fatalf("open breaker must exclude alpha, got %d calls", alpha.Calls())
	}
	if len(resp.Attempts) != 1 || resp.Attempts[0].Provider != "beta" {
		t.Fatalf("expected a single beta attempt, got %+v", resp.Attempts)
	}
}

func TestForcedProvider(t *testing.T) {
	alpha := provider.NewMock("alpha")
	beta := provider.NewMock("beta").WithFallback("beta answer")
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(alpha, beta))

	resp, err := g.Submit(context.Background(), Request{
		CallerID: "tester",
		Prompt:   "why does the tide turn",
		Provider: "beta",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "beta" {
		t.Fatalf("expected beta, got %s", resp.Provider)
	}
	if alpha.Calls() != 0 {
		t.Fatal("forced provider must bypass routing")
	}
}

func TestInvalidRequests(t *testing.T) {
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(provider.NewMock("alpha"), provider.NewMock("beta")))

	_, err := g.Submit(context.Background(), Request{CallerID: "t", Prompt: "hello", Mode: "TURBO"})
	if CodeOf(err) != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for bad mode, got %v", err)
	}

	_, err = g.Submit(context.Background(), Request{CallerID: "t", Prompt: "   "})
	if CodeOf(err) != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for empty prompt, got %v", err)
	}

	_, err = g.Submit(context.Background(), Request{CallerID: "t", Prompt: "hello", Provider: "nonexistent"})
	if CodeOf(err) != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for unknown provider, got %v", err)
	}
}

func TestCorrelationIDPassthrough(t *testing.T) {
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(provider.NewMock("alpha"), provider.NewMock("beta")))

	resp, err := g.Submit(context.Background(), Request{
		CallerID:      "tester",
		Prompt:        "why does the tide turn",
		CorrelationID: "trace-123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CorrelationID != "trace-123" {
		t.Fatalf("expected trace-123, got %s", resp.CorrelationID)
	}
}

func TestCostEstimate(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Pricing = config.PricingConfig{
		"alpha": {"alpha-1": {PromptPer1K: 0.01, CompletionPer1K: 0.03}},
	}
	alpha := provider.NewMock("alpha").WithUsage(provider.Usage{
		PromptTokens:     1000,
		CompletionTokens: 1000,
		TotalTokens:      2000,
	})
	g := newTestGateway(t, cfg, twoProviderRegistry(alpha, provider.NewMock("beta")))

	resp, err := g.Submit(context.Background(), Request{CallerID: "t", Prompt: "why does the tide turn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Cost == nil {
		t.Fatal("expected a cost estimate")
	}
	if resp.Cost.Amount < 0.0399 || resp.Cost.Amount > 0.0401 {
		t.Fatalf("expected roughly 0.04, got %f", resp.Cost.Amount)
	}
}

func TestHealthReport(t *testing.T) {
	g := newTestGateway(t, testGatewayConfig(), twoProviderRegistry(provider.NewMock("alpha"), provider.NewMock("beta")))

	g.Submit(context.Background(), Request{CallerID: "tester", Prompt: "why does the tide turn"})

	health := g.Health()
	if len(health.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(health.Providers))
	}
	for _, p := range health.Providers {
		if p.Breaker.State != "closed" {
			t.Fatalf("expected closed breaker for %s, got %s", p.Name, p.Breaker.State)
		}
	}
	if len(health.RateLimits) != 1 {
		t.Fatalf("expected 1 rate limit bucket, got %d", len(health.RateLimits))
	}
	if health.Dedup.Cached != 1 {
		t.Fatalf("expected 1 cached dedup entry, got %d", health.Dedup.Cached)
	}
}
