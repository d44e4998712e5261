package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

type fakeA2AClient struct {
	gotMethod  string
	gotPayload map[string]any
	result     map[string]any
	err        error
}

func (c *fakeA2AClient) Call(ctx context.Context, endpoint config.EndpointConfig, method string, cap capsule.Capsule, payload map[string]any) (map[string]any, error) {
	c.gotMethod = method
	c.gotPayload = payload
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func testExternalAgent() config.AgentConfig {
	agent := testAgent(config.RunnerExternal)
	agent.Endpoint = &config.EndpointConfig{URL: "https://partner.example.com/a2a"}
	return agent
}

func TestExternalController_RequiresEndpointConfig(t *testing.T) {
	c := NewExternalController(&fakeA2AClient{})

	_, err := c.Run(context.Background(), testAgent(config.RunnerExternal), testCapsule(), Request{Mode: ModeConverse})

	require.Error(t, err)
	assert.Equal(t, errs.BadRequest, errs.KindOf(err))
}

func TestExternalController_BuildsJSONRPCMethodFromModeAndAction(t *testing.T) {
	client := &fakeA2AClient{result: map[string]any{"status": "ok"}}
	c := NewExternalController(client)

	out, err := c.Run(context.Background(), testExternalAgent(), testCapsule(), Request{Mode: ModeConverse, Action: "summarize", Payload: map[string]any{"text": "hi"}})

	require.NoError(t, err)
	assert.Equal(t, "converse.summarize", client.gotMethod)
	assert.Equal(t, "hi", client.gotPayload["text"])
	assert.JSONEq(t, `{"status":"ok"}`, string(out.Content))
}

func TestExternalController_PropagatesClientError(t *testing.T) {
	client := &fakeA2AClient{err: errs.New(errs.UpstreamFailure, "partner down")}
	c := NewExternalController(client)

	_, err := c.Run(context.Background(), testExternalAgent(), testCapsule(), Request{Mode: ModeConverse, Action: "summarize"})

	require.Error(t, err)
	assert.Equal(t, errs.UpstreamFailure, errs.KindOf(err))
}
