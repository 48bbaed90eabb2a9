package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Google implements the Provider interface for Gemini models.
type Google struct {
	client *genai.Client
}

// NewGoogle creates a new Google Gemini provider.
func NewGoogle(apiKey string) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &Google{client: client}, nil
}

// Name returns the provider identifier.
func (p *Google) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (p *Google) Models() []string {
	return []string{
		"gemini-2.0-pro",
	}
}

// Invoke sends the request to Gemini and returns the generated text.
func (p *Google) Invoke(ctx context.Context, req Request) (*Result, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(Prompt(req.Messages)), cfg)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Temporary: IsTimeout(err), Err: err}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Provider: p.Name(), Err: fmt.Errorf("no candidates returned")}
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Result{Content: content, Model: req.Model, Usage: usage}, nil
}
