package runner

import (
	"context"
	"encoding/json"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// A2AClient is the subset of the External Agent Client (C8) the external
// runner uses. Declared here, implemented by pkg/a2aclient, so this
// package doesn't need to know its retry/discovery internals.
type A2AClient interface {
	Call(ctx context.Context, endpoint config.EndpointConfig, method string, cap capsule.Capsule, payload map[string]any) (map[string]any, error)
}

// ExternalController makes an A2A JSON-RPC call to the agent's endpoint,
// passing the capsule through verbatim (spec.md §4.6).
type ExternalController struct {
	client A2AClient
}

func NewExternalController(client A2AClient) *ExternalController {
	return &ExternalController{client: client}
}

func (c *ExternalController) Type() config.RunnerType { return config.RunnerExternal }

func (c *ExternalController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	if agent.Endpoint == nil {
		return Output{}, errs.New(errs.BadRequest, "external runner requires agent.endpoint configuration")
	}

	method := string(req.Mode) + "." + req.Action
	result, err := c.client.Call(ctx, *agent.Endpoint, method, cap, req.Payload)
	if err != nil {
		return Output{}, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return Output{}, errs.Wrap(errs.Internal, "failed to encode external agent response", err)
	}
	return Output{Content: encoded}, nil
}
