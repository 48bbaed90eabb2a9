package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Mock returns deterministic responses for local runs and tests.
type Mock struct {
	name      string
	responses map[string]string
	fallback  string
	err       error
	delay     time.Duration
	usage     Usage
	calls     atomic.Int64
}

// NewMock creates a mock provider with a default response.
func NewMock(name string) *Mock {
	if name == "" {
		name = "mock"
	}
	return &Mock{
		name:      name,
		responses: make(map[string]string),
		fallback:  "mock response:",
	}
}

// WithResponses sets per-prompt canned responses.
func (p *Mock) WithResponses(responses map[string]string) *Mock {
	p.responses = responses
	return p
}

// WithFallback sets the response returned for unknown prompts.
func (p *Mock) WithFallback(response string) *Mock {
	p.fallback = response
	return p
}

// WithError makes every Invoke fail with err.
func (p *Mock) WithError(err error) *Mock {
	p.err = err
	return p
}

// WithDelay makes Invoke sleep before responding.
func (p *Mock) WithDelay(d time.Duration) *Mock {
	p.delay = d
	return p
}

// WithUsage sets the token usage attached to results.
func (p *Mock) WithUsage(u Usage) *Mock {
	p.usage = u
	return p
}

// Name returns the provider identifier.
func (p *Mock) Name() string {
	return p.name
}

// Models returns the list of supported mock models.
func (p *Mock) Models() []string {
	return []string{"mock-1"}
}

// Calls returns how many times Invoke has been called.
func (p *Mock) Calls() int {
	return int(p.calls.Load())
}

// Invoke returns a deterministic result for the request.
func (p *Mock) Invoke(ctx context.Context, req Request) (*Result, error) {
	p.calls.Add(1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	model := req.Model
	if model == "" {
		model = "mock-1"
	}

	prompt := Prompt(req.Messages)
	content, ok := p.responses[prompt]
	if !ok {
		content = fmt.Sprintf("%s\n%s", p.fallback, prompt)
	}
	return &Result{Content: content, Model: model, Usage: p.usage}, nil
}
