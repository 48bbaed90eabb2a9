package provider

import "context"

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized payload sent to a provider.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a provider's normalized response.
type Result struct {
	Content string
	Model   string
	Usage   Usage
}

// Provider defines the interface for text-generation providers.
type Provider interface {
	// Invoke sends a request to the provider and returns the result.
	Invoke(ctx context.Context, req Request) (*Result, error)

	// Name returns the provider's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Prompt flattens messages into a single prompt string for providers
// whose SDK call takes plain text.
func Prompt(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var out string
	for _, m := range messages {
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}
