package provider

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

type fakeMessages struct {
	resp *sdk.Message
	err  error
}

func (f fakeMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return f.resp, f.err
}

func TestAnthropicComplete_ExtractsTextAndUsage(t *testing.T) {
	client := fakeMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
		Usage:   sdk.Usage{InputTokens: 12, OutputTokens: 7},
	}}
	a := NewAnthropicWithClient(client)

	resp, err := a.Complete(context.Background(), llmgateway.Request{Model: "claude-sonnet", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 7, resp.Usage.CompletionTokens)
}

func TestAnthropicComplete_TimeoutMapsToUpstreamTimeout(t *testing.T) {
	client := fakeMessages{err: context.DeadlineExceeded}
	a := NewAnthropicWithClient(client)

	_, err := a.Complete(context.Background(), llmgateway.Request{Model: "claude-sonnet", UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, errs.UpstreamTimeout, errs.KindOf(err))
}

func TestAnthropicComplete_UnrecognizedErrorMapsToInternal(t *testing.T) {
	client := fakeMessages{err: errors.New("connection reset")}
	a := NewAnthropicWithClient(client)

	_, err := a.Complete(context.Background(), llmgateway.Request{Model: "claude-sonnet", UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}
