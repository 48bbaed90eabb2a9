// Package gateway orchestrates request admission, classification,
// routing, and execution across text generation providers.
package gateway

import (
	"fmt"
	"time"

	"github.com/zen-systems/modelgate/pkg/classify"
	"github.com/zen-systems/modelgate/pkg/provider"
)

// ExecutionMode selects how many providers serve one request.
type ExecutionMode string

const (
	// ModeFast invokes the single best candidate with no fallback.
	ModeFast ExecutionMode = "FAST"
	// ModeBalanced walks the candidate chain until one succeeds.
	ModeBalanced ExecutionMode = "BALANCED"
	// ModeRoundTable fans out to several providers concurrently and
	// selects the best response.
	ModeRoundTable ExecutionMode = "ROUND_TABLE"
)

// ParseMode validates an execution mode name. Empty defaults to
// BALANCED.
func ParseMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeFast, ModeBalanced, ModeRoundTable:
		return ExecutionMode(s), nil
	case "":
		return ModeBalanced, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// Request is one text generation request submitted to the gateway.
type Request struct {
	// CallerID identifies the caller for rate limiting.
	CallerID string
	// Prompt is the raw user prompt. Ignored when Messages is set.
	Prompt string
	// Messages carries a multi-turn conversation. The last user turn
	// drives classification.
	Messages []provider.Message
	// TaskHint skips classification and pins the category directly.
	TaskHint classify.Category
	// Mode selects the execution strategy. Empty means BALANCED.
	Mode ExecutionMode
	// Provider forces a specific provider, bypassing routing.
	Provider string
	// Model overrides the provider's default model.
	Model string
	// Strategy overrides the configured routing strategy.
	Strategy string
	// Technique overrides the classifier's technique choice.
	Technique classify.Technique
	// Temperature and MaxTokens pass through to the provider.
	Temperature float64
	MaxTokens   int
	// CorrelationID threads an external trace ID through the
	// pipeline. Empty generates a fresh one.
	CorrelationID string
}

// Attempt records one provider invocation made for a request.
type Attempt struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// StageLatency breaks a request's wall time down by pipeline stage.
type StageLatency struct {
	Classification time.Duration `json:"classification"`
	Routing        time.Duration `json:"routing"`
	Execution      time.Duration `json:"execution"`
	Total          time.Duration `json:"total"`
}

// Cost is an estimated spend for a response.
type Cost struct {
	Currency   string  `json:"currency"`
	Amount     float64 `json:"amount"`
	IsEstimate bool    `json:"is_estimate"`
}

// Response is the gateway's answer to a request.
type Response struct {
	Content       string              `json:"content"`
	Provider      string              `json:"provider"`
	Model         string              `json:"model"`
	Mode          ExecutionMode       `json:"mode"`
	Category      classify.Category   `json:"category"`
	Technique     classify.Technique  `json:"technique"`
	Confidence    float64             `json:"confidence"`
	Usage         provider.Usage      `json:"usage"`
	Cost          *Cost               `json:"cost,omitempty"`
	CorrelationID string              `json:"correlation_id"`
	Deduplicated  bool                `json:"deduplicated"`
	Attempts      []Attempt           `json:"attempts,omitempty"`
	RoundTable    *DeliberationReport `json:"round_table,omitempty"`
	Latency       StageLatency        `json:"latency"`
}
