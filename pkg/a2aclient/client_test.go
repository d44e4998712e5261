package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

type fakeRoundTripper struct {
	status int
	body   string
	err    error
	gotReq *http.Request
	gotRaw []byte
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.gotReq = req
	if req.Body != nil {
		f.gotRaw, _ = io.ReadAll(req.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
		Header:     make(http.Header),
	}, nil
}

func testEndpoint() config.EndpointConfig {
	return config.EndpointConfig{URL: "https://partner.example.com/rpc"}
}

func testCap() capsule.Capsule {
	return capsule.Capsule{
		OrgSlug: "acme", UserID: "user-1", ConversationID: "conv-1", AgentSlug: "researcher",
		AgentType: "external", Provider: "anthropic", Model: "claude-sonnet",
		TaskID: "task-1", PlanID: capsule.NIL, DeliverableID: capsule.NIL, TraceID: "trace-1",
	}
}

func TestClient_Call_EncodesLiteralJSONRPCEnvelope(t *testing.T) {
	rt := &fakeRoundTripper{status: 200, body: `{"jsonrpc":"2.0","result":{"status":"ok"},"id":"trace-1"}`}
	c := New(&http.Client{Transport: rt}, nil)

	result, err := c.Call(context.Background(), testEndpoint(), "converse.summarize", testCap(), map[string]any{"text": "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])

	var sent rpcRequest
	require.NoError(t, json.Unmarshal(rt.gotRaw, &sent))
	assert.Equal(t, "2.0", sent.JSONRPC)
	assert.Equal(t, "converse.summarize", sent.Method)
	assert.Equal(t, "trace-1", sent.ID)
}

func TestClient_Call_MapsStandardJSONRPCErrorCodes(t *testing.T) {
	cases := []struct {
		code int
		kind errs.Kind
	}{
		{-32600, errs.BadRequest},
		{-32601, errs.NotFound},
		{-32602, errs.BadRequest},
		{-32603, errs.Internal},
		{-32000, errs.UpstreamFailure},
	}
	for _, tc := range cases {
		body := map[string]any{"jsonrpc": "2.0", "id": "trace-1", "error": map[string]any{"code": tc.code, "message": "boom"}}
		encoded, _ := json.Marshal(body)
		rt := &fakeRoundTripper{status: 200, body: string(encoded)}
		c := New(&http.Client{Transport: rt}, nil)

		_, err := c.Call(context.Background(), testEndpoint(), "converse.summarize", testCap(), nil)

		require.Error(t, err)
		assert.Equal(t, tc.kind, errs.KindOf(err))
	}
}

func TestClient_Call_ServerErrorIsUpstreamFailure(t *testing.T) {
	rt := &fakeRoundTripper{status: 503, body: "unavailable"}
	c := New(&http.Client{Transport: rt}, nil)

	_, err := c.Call(context.Background(), testEndpoint(), "converse.summarize", testCap(), nil)

	require.Error(t, err)
	assert.Equal(t, errs.UpstreamFailure, errs.KindOf(err))
}

func TestClient_Call_SetsBearerAuthHeaderFromAuthFunc(t *testing.T) {
	rt := &fakeRoundTripper{status: 200, body: `{"jsonrpc":"2.0","result":{},"id":"trace-1"}`}
	c := New(&http.Client{Transport: rt}, func(endpoint config.EndpointConfig) *AuthCredentials {
		return &AuthCredentials{Type: "bearer", Token: "s3cr3t"}
	})

	_, err := c.Call(context.Background(), testEndpoint(), "converse.summarize", testCap(), nil)

	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cr3t", rt.gotReq.Header.Get("Authorization"))
}
