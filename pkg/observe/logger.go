// Package observe provides correlation-id propagation and structured
// event logging for the gateway. Every component emits its events through
// a Logger so that all log lines for one request share a correlation id.
package observe

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger emits structured gateway events. The zero value is not usable;
// construct with NewLogger or Nop.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a logger writing JSON events to w.
func NewLogger(w io.Writer, level zerolog.Level) Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// Nop returns a logger that discards all events.
func Nop() Logger {
	return Logger{zl: zerolog.Nop()}
}

func (l Logger) event(ctx context.Context, ev *zerolog.Event, name string) *zerolog.Event {
	if id := CorrelationID(ctx); id != "" {
		ev = ev.Str("correlation_id", id)
	}
	return ev.Str("event", name)
}

// RequestReceived records entry of a request into the gateway.
func (l Logger) RequestReceived(ctx context.Context, caller, mode string) {
	l.event(ctx, l.zl.Info(), "request_received").
		Str("caller", caller).
		Str("mode", mode).
		Msg("request received")
}

// Classified records the classifier outcome.
func (l Logger) Classified(ctx context.Context, category, technique string, confidence float64, cacheHit bool, latency time.Duration) {
	l.event(ctx, l.zl.Info(), "classified").
		Str("category", category).
		Str("technique", technique).
		Float64("confidence", confidence).
		Bool("cache_hit", cacheHit).
		Dur("latency", latency).
		Msg("request classified")
}

// ProviderSelected records the router's candidate order.
func (l Logger) ProviderSelected(ctx context.Context, strategy string, candidates []string) {
	l.event(ctx, l.zl.Info(), "provider_selected").
		Str("strategy", strategy).
		Strs("candidates", candidates).
		Msg("providers ranked")
}

// CallStart records the beginning of a provider invocation.
func (l Logger) CallStart(ctx context.Context, provider, model string) {
	l.event(ctx, l.zl.Debug(), "provider_call_start").
		Str("provider", provider).
		Str("model", model).
		Msg("provider call start")
}

// CallEnd records the outcome of a provider invocation.
func (l Logger) CallEnd(ctx context.Context, provider, model string, latency time.Duration, err error) {
	ev := l.event(ctx, l.zl.Info(), "provider_call_end").
		Str("provider", provider).
		Str("model", model).
		Dur("latency", latency)
	if err != nil {
		ev.Err(err).Msg("provider call failed")
		return
	}
	ev.Msg("provider call ok")
}

// BreakerTransition records a circuit breaker state change.
func (l Logger) BreakerTransition(provider, from, to string) {
	l.zl.Warn().
		Str("event", "breaker_transition").
		Str("provider", provider).
		Str("from", from).
		Str("to", to).
		Msg("circuit breaker transition")
}

// RateLimitDecision records an admission-control decision.
func (l Logger) RateLimitDecision(ctx context.Context, key string, allowed bool, retryAfter float64) {
	ev := l.event(ctx, l.zl.Debug(), "rate_limit")
	if !allowed {
		ev = l.event(ctx, l.zl.Warn(), "rate_limit")
	}
	ev.Str("key", key).
		Bool("allowed", allowed).
		Float64("retry_after_seconds", retryAfter).
		Msg("rate limit decision")
}

// DedupDecision records whether a request attached to an in-flight or
// cached execution.
func (l Logger) DedupDecision(ctx context.Context, key string, hit bool) {
	l.event(ctx, l.zl.Debug(), "dedup").
		Str("key", key).
		Bool("hit", hit).
		Msg("deduplication decision")
}

// Completed records a successful request completion.
func (l Logger) Completed(ctx context.Context, provider string, total time.Duration) {
	l.event(ctx, l.zl.Info(), "completed").
		Str("provider", provider).
		Dur("total_latency", total).
		Msg("request completed")
}

// Failed records a terminal request failure.
func (l Logger) Failed(ctx context.Context, code string, err error) {
	l.event(ctx, l.zl.Error(), "failed").
		Str("code", code).
		Err(err).
		Msg("request failed")
}
