package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/modelgate/pkg/breaker"
	"github.com/zen-systems/modelgate/pkg/classify"
	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/dedup"
	"github.com/zen-systems/modelgate/pkg/observe"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/ratelimit"
	"github.com/zen-systems/modelgate/pkg/route"
)

// Gateway coordinates the full request pipeline: admission,
// deduplication, classification, routing, and execution.
type Gateway struct {
	cfg        *config.GatewayConfig
	logger     observe.Logger
	registry   *provider.Registry
	limiter    *ratelimit.Limiter
	dedup      *dedup.Group
	classifier *classify.Classifier
	breakers   *breaker.Registry
	router     *route.Router
	strategy   route.Strategy
}

// New wires a gateway from configuration and registered providers.
// refiner may be nil to disable LLM-assisted classification.
func New(cfg *config.GatewayConfig, registry *provider.Registry, refiner provider.Provider, logger observe.Logger) (*Gateway, error) {
	if cfg == nil {
		cfg = config.DefaultGatewayConfig()
	}

	strategy, err := route.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutMs) * time.Millisecond,
	}, func(name string, from, to breaker.State) {
		logger.BreakerTransition(name, from.String(), to.String())
	})

	classifierCfg := classify.Config{
		Triggers:            triggersFromConfig(cfg.Classifier.Triggers),
		DefaultCategory:     classify.Category(cfg.Classifier.DefaultCategory),
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
		RefinerModel:        cfg.Classifier.RefinerModel,
		CacheTTL:            time.Duration(cfg.Classifier.CacheTTLMinutes) * time.Minute,
	}

	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		limiter: ratelimit.New(ratelimit.Config{
			Capacity:        cfg.RateLimit.Capacity,
			RefillPerSecond: cfg.RateLimit.RefillPerSecond,
		}),
		dedup: dedup.NewGroup(dedup.Config{
			TTL: time.Duration(cfg.Dedup.TTLSeconds) * time.Second,
		}),
		classifier: classify.New(classifierCfg, refiner),
		breakers:   breakers,
		router:     route.New(registry, breakers),
		strategy:   strategy,
	}, nil
}

func triggersFromConfig(raw map[string][]string) map[classify.Category][]string {
	if len(raw) == 0 {
		return nil
	}
	triggers := classify.DefaultTriggers()
	for cat, list := range raw {
		triggers[classify.Category(cat)] = list
	}
	return triggers
}

// Submit runs one request through the pipeline and returns the
// response or a typed gateway error.
func (g *Gateway) Submit(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.CorrelationID != "" {
		ctx = observe.WithCorrelationID(ctx, req.CorrelationID)
	}
	ctx, correlationID := observe.EnsureCorrelationID(ctx)

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: err.Error(), CorrelationID: correlationID}
	}
	req.Mode = mode
	if strings.TrimSpace(promptFor(req)) == "" {
		return nil, &Error{Code: CodeInvalidRequest, Message: "prompt is empty", CorrelationID: correlationID}
	}

	g.logger.RequestReceived(ctx, req.CallerID, string(req.Mode))

	caller := req.CallerID
	if caller == "" {
		caller = "anonymous"
	}
	if allowed, retryAfter := g.limiter.Consume(caller, 1); !allowed {
		g.logger.RateLimitDecision(ctx, caller, false, retryAfter)
		return nil, &Error{
			Code:          CodeRateLimited,
			Message:       fmt.Sprintf("caller %q exceeded rate limit", caller),
			CorrelationID: correlationID,
			RetryAfter:    retryAfter,
		}
	}
	g.logger.RateLimitDecision(ctx, caller, true, 0)

	key := dedup.Key(map[string]any{
		"prompt":      req.Prompt,
		"messages":    req.Messages,
		"mode":        string(req.Mode),
		"provider":    req.Provider,
		"model":       req.Model,
		"strategy":    req.Strategy,
		"technique":   string(req.Technique),
		"task_hint":   string(req.TaskHint),
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	})

	value, deduplicated, err := g.dedup.Do(ctx, key, func(workCtx context.Context) (any, error) {
		return g.execute(observe.WithCorrelationID(workCtx, correlationID), req)
	})
	g.logger.DedupDecision(ctx, key, deduplicated)

	if err != nil {
		var pe *dedup.PropagatedError
		if errors.As(err, &pe) {
			err = &Error{
				Code:          CodeDuplicateFailed,
				Message:       "collapsed duplicate request failed",
				CorrelationID: correlationID,
				Err:           pe.Err,
			}
		}
		g.logger.Failed(ctx, string(CodeOf(err)), err)
		return nil, err
	}

	// Deduplicated callers get their own envelope around the shared
	// result.
	shared := value.(*Response)
	resp := *shared
	resp.CorrelationID = correlationID
	resp.Deduplicated = deduplicated
	resp.Latency.Total = time.Since(start)

	g.logger.Completed(ctx, resp.Provider, resp.Latency.Total)
	return &resp, nil
}

// promptFor returns the text that drives classification: the last
// user turn of a conversation, or the bare prompt.
func promptFor(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return req.Prompt
}

// messagesFor builds the provider payload, applying the technique
// framing to single prompts and prepending it to conversations that
// lack a system turn.
func messagesFor(technique classify.Technique, req Request) []provider.Message {
	if len(req.Messages) == 0 {
		return classify.Frame(technique, req.Prompt)
	}
	if req.Messages[0].Role == "system" {
		return req.Messages
	}
	framed := classify.Frame(technique, "")
	if len(framed) < 2 {
		return req.Messages
	}
	return append([]provider.Message{framed[0]}, req.Messages...)
}

// execute classifies, routes, and runs the request under its mode.
func (g *Gateway) execute(ctx context.Context, req Request) (*Response, error) {
	correlationID := observe.CorrelationID(ctx)

	classifyStart := time.Now()
	var result classify.Result
	if req.TaskHint != "" {
		result = classify.Result{
			Category:   req.TaskHint,
			Technique:  classify.TechniqueFor(req.TaskHint),
			Confidence: 1,
		}
	} else {
		result = g.classifier.Classify(ctx, promptFor(req))
	}
	if req.Technique != "" {
		result.Technique = req.Technique
	}
	classifyLatency := time.Since(classifyStart)
	g.logger.Classified(ctx, string(result.Category), string(result.Technique),
		result.Confidence, result.CacheHit, classifyLatency)

	routeStart := time.Now()
	strategy := g.strategy
	if req.Strategy != "" {
		parsed, err := route.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, &Error{Code: CodeInvalidRequest, Message: err.Error(), CorrelationID: correlationID}
		}
		strategy = parsed
	}

	candidates, err := g.router.Plan(string(result.Category), strategy, req.Provider)
	if err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: err.Error(), CorrelationID: correlationID}
	}
	if len(candidates) == 0 {
		return nil, &Error{
			Code:          CodeProviderUnavailable,
			Message:       "no healthy provider available",
			CorrelationID: correlationID,
		}
	}
	g.logger.ProviderSelected(ctx, string(strategy), candidateNames(candidates))
	routeLatency := time.Since(routeStart)

	executeStart := time.Now()
	var resp *Response
	switch req.Mode {
	case ModeFast:
		resp, err = g.fast(ctx, req, result, candidates)
	case ModeRoundTable:
		resp, err = g.roundTable(ctx, req, result, candidates)
	default:
		resp, err = g.balanced(ctx, req, result, candidates)
	}
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) && ge.CorrelationID == "" {
			ge.CorrelationID = correlationID
		}
		return nil, err
	}
	resp.Latency.Classification = classifyLatency
	resp.Latency.Routing = routeLatency
	resp.Latency.Execution = time.Since(executeStart)
	return resp, nil
}

// fast invokes the single top candidate with no fallback.
func (g *Gateway) fast(ctx context.Context, req Request, result classify.Result, candidates []route.Candidate) (*Response, error) {
	cand := candidates[0]
	if !g.router.Allow(cand.Descriptor.Name) {
		return nil, &Error{
			Code:    CodeProviderUnavailable,
			Message: fmt.Sprintf("provider %q is not accepting traffic", cand.Descriptor.Name),
		}
	}

	attempt, res, err := g.invoke(ctx, req, result, cand)
	if err != nil {
		return nil, &Error{
			Code:    CodeAllProvidersExhausted,
			Message: fmt.Sprintf("provider %q failed with no fallback", cand.Descriptor.Name),
			Err:     err,
		}
	}
	return g.buildResponse(req, result, attempt, res, []Attempt{attempt}), nil
}

// balanced walks the candidate chain until one succeeds. Failures
// that are not transient end the chain early.
func (g *Gateway) balanced(ctx context.Context, req Request, result classify.Result, candidates []route.Candidate) (*Response, error) {
	attempts := make([]Attempt, 0, len(candidates))
	for _, cand := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !g.router.Allow(cand.Descriptor.Name) {
			continue
		}
		attempt, res, err := g.invoke(ctx, req, result, cand)
		attempts = append(attempts, attempt)
		if err == nil {
			return g.buildResponse(req, result, attempt, res, attempts), nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !provider.IsTransient(err) {
			return nil, &Error{
				Code:    CodeAllProvidersExhausted,
				Message: fmt.Sprintf("provider %q failed with a non-retryable error", cand.Descriptor.Name),
				Err:     err,
			}
		}
	}
	return nil, &Error{
		Code:    CodeAllProvidersExhausted,
		Message: fmt.Sprintf("all %d attempted providers failed", len(attempts)),
	}
}

// invoke runs one provider call, reporting the outcome to the router.
func (g *Gateway) invoke(ctx context.Context, req Request, result classify.Result, cand route.Candidate) (Attempt, *provider.Result, error) {
	model := req.Model
	if model == "" {
		model = cand.Descriptor.DefaultModel
	}
	attempt := Attempt{Provider: cand.Descriptor.Name, Model: model}

	invokeCtx := ctx
	if cand.Descriptor.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, cand.Descriptor.Timeout)
		defer cancel()
	}

	g.logger.CallStart(ctx, cand.Descriptor.Name, model)
	start := time.Now()
	res, err := cand.Provider.Invoke(invokeCtx, provider.Request{
		Model:       model,
		Messages:    messagesFor(result.Technique, req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	attempt.Latency = time.Since(start)
	g.logger.CallEnd(ctx, cand.Descriptor.Name, model, attempt.Latency, err)

	if err != nil {
		g.router.ReportFailure(cand.Descriptor.Name)
		attempt.Error = err.Error()
		return attempt, nil, err
	}

	g.router.ReportSuccess(cand.Descriptor.Name, attempt.Latency)
	return attempt, res, nil
}

func (g *Gateway) buildResponse(req Request, result classify.Result, attempt Attempt, res *provider.Result, attempts []Attempt) *Response {
	resp := &Response{
		Content:    res.Content,
		Provider:   attempt.Provider,
		Model:      attempt.Model,
		Mode:       req.Mode,
		Category:   result.Category,
		Technique:  result.Technique,
		Confidence: result.Confidence,
		Usage:      res.Usage,
		Attempts:   attempts,
	}
	if cost, ok := estimateCost(g.cfg.Pricing, attempt.Provider, attempt.Model, res.Usage); ok {
		resp.Cost = &cost
	}
	return resp
}

func candidateNames(candidates []route.Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Descriptor.Name
	}
	return names
}
