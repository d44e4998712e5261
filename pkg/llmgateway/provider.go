// Package llmgateway implements the single-entry LLM Gateway (spec.md
// C4): pseudonymize, call a provider adapter with retry, reverse, price,
// account, and emit — all behind one generate() call.
package llmgateway

import "context"

// Request is what a provider adapter receives after the gateway has
// resolved provider/model and pseudonymized both prompts.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Usage reports the token counts a provider actually billed, used for both
// cost computation and for recording usage on cancellation after the
// provider call has started (spec.md §4.4: "using tokens the provider
// returned").
type Usage struct {
	PromptTokens      int
	CompletionTokens  int
	CachedInputTokens int
	ThinkingTokens    int
}

// Response is a provider adapter's normalized result.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is implemented once per upstream (Anthropic, OpenAI, Bedrock).
// Adapters translate Request/Response to and from their SDK's own types;
// retry and timeout are handled by the gateway, not the adapter.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
