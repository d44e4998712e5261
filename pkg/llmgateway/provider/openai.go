package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// chatClient is the subset of the OpenAI SDK this adapter uses.
type chatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements llmgateway.Provider over the Chat Completions API.
type OpenAI struct {
	chat chatClient
}

// NewOpenAI builds an adapter from an API key.
func NewOpenAI(apiKey string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{chat: &client.Chat.Completions}
}

// NewOpenAIWithClient builds an adapter over an already-constructed
// chatClient, for tests.
func NewOpenAIWithClient(chat chatClient) *OpenAI {
	return &OpenAI{chat: chat}
}

// Name implements llmgateway.Provider.
func (o *OpenAI) Name() string { return "openai" }

// Complete implements llmgateway.Provider.
func (o *OpenAI) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := o.chat.New(ctx, params)
	if err != nil {
		return llmgateway.Response{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return llmgateway.Response{}, errs.New(errs.Internal, "openai: no choices in response")
	}

	return llmgateway.Response{
		Content: resp.Choices[0].Message.Content,
		Usage: llmgateway.Usage{
			PromptTokens:      int(resp.Usage.PromptTokens),
			CompletionTokens:  int(resp.Usage.CompletionTokens),
			CachedInputTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.UpstreamTimeout, "openai request timed out", err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status == 429 || status >= 500 {
			return errs.Wrap(errs.UpstreamFailure, fmt.Sprintf("openai returned status %d", status), err)
		}
		return errs.Wrap(errs.Internal, fmt.Sprintf("openai returned status %d", status), err)
	}
	return errs.Wrap(errs.Internal, "openai request failed", err)
}
