package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// converseClient is the subset of *bedrockruntime.Client this adapter
// uses, narrowed for testability the way the Anthropic adapter narrows
// MessagesClient.
type converseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock implements llmgateway.Provider over the Bedrock Converse API,
// grounded on gomind's bedrock.Client.GenerateResponse.
type Bedrock struct {
	client converseClient
}

// NewBedrock builds an adapter over an already-configured bedrockruntime
// client (construction of the aws.Config is the caller's concern — it
// differs between IAM roles, static creds, and local profiles).
func NewBedrock(client *bedrockruntime.Client) *Bedrock {
	return &Bedrock{client: client}
}

// Name implements llmgateway.Provider.
func (b *Bedrock) Name() string { return "bedrock" }

// Complete implements llmgateway.Provider.
func (b *Bedrock) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.UserPrompt}},
			},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}

	inference := &types.InferenceConfiguration{}
	configSet := false
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
		configSet = true
	}
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(req.Temperature))
		configSet = true
	}
	if configSet {
		input.InferenceConfig = inference
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return llmgateway.Response{}, classifyBedrockError(err)
	}
	if output.Output == nil {
		return llmgateway.Response{}, errs.New(errs.Internal, "bedrock: no output in response")
	}

	var content string
	switch v := output.Output.(type) {
	case *types.ConverseOutputMemberMessage:
		for _, block := range v.Value.Content {
			if b, ok := block.(*types.ContentBlockMemberText); ok {
				content += b.Value
			}
		}
	default:
		return llmgateway.Response{}, errs.New(errs.Internal, "bedrock: unexpected output type")
	}

	resp := llmgateway.Response{Content: content}
	if output.Usage != nil {
		resp.Usage = llmgateway.Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

func classifyBedrockError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.UpstreamTimeout, "bedrock request timed out", err)
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 429 || status >= 500 {
			return errs.Wrap(errs.UpstreamFailure, fmt.Sprintf("bedrock returned status %d", status), err)
		}
		return errs.Wrap(errs.Internal, fmt.Sprintf("bedrock returned status %d", status), err)
	}
	return errs.Wrap(errs.Internal, "bedrock request failed", err)
}
