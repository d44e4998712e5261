// Package provider holds one adapter per upstream LLM API, each
// implementing llmgateway.Provider. Grounded on goa-ai's
// features/model/{anthropic,bedrock}/client.go adapters, simplified to the
// gateway's single-shot, non-streaming Complete call.
package provider

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// MessagesClient is the subset of the Anthropic SDK this adapter uses,
// narrowed so tests can substitute a fake (goa-ai's anthropic.
// MessagesClient does the same).
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements llmgateway.Provider over the Claude Messages API.
type Anthropic struct {
	msg MessagesClient
}

// NewAnthropic builds an adapter from an API key.
func NewAnthropic(apiKey string) *Anthropic {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{msg: &client.Messages}
}

// NewAnthropicWithClient builds an adapter over an already-constructed
// MessagesClient, for tests.
func NewAnthropicWithClient(msg MessagesClient) *Anthropic {
	return &Anthropic{msg: msg}
}

// Name implements llmgateway.Provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements llmgateway.Provider.
func (a *Anthropic) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return llmgateway.Response{}, classifyError("anthropic", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return llmgateway.Response{
		Content: content,
		Usage: llmgateway.Usage{
			PromptTokens:      int(msg.Usage.InputTokens),
			CompletionTokens:  int(msg.Usage.OutputTokens),
			CachedInputTokens: int(msg.Usage.CacheReadInputTokens),
		},
	}, nil
}

// classifyError maps a provider SDK error to a stable errs.Kind so the
// gateway's retry policy can decide without knowing about SDK internals.
func classifyError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.UpstreamTimeout, name+" request timed out", err)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status == 429 || status >= 500 {
			return errs.Wrap(errs.UpstreamFailure, fmt.Sprintf("%s returned status %d", name, status), err)
		}
		// Non-429/5xx provider errors (bad request, auth, etc.) are
		// terminal — the gateway's retry loop only retries
		// errs.UpstreamFailure/errs.UpstreamTimeout.
		return errs.Wrap(errs.Internal, fmt.Sprintf("%s returned status %d", name, status), err)
	}
	return errs.Wrap(errs.Internal, name+" request failed", err)
}
