package runner

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

type fakeRoundTripper struct {
	responses []roundTripResult
	calls     int
	reqs      []*http.Request
}

type roundTripResult struct {
	status int
	body   string
	err    error
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.reqs = append(f.reqs, req)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return nil, errs.New(errs.Internal, "fakeRoundTripper: no response configured")
	}
	r := f.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
		Header:     make(http.Header),
	}, nil
}

func clientWith(rt *fakeRoundTripper) *http.Client {
	return &http.Client{Transport: rt}
}

func testAPIAgent() config.AgentConfig {
	agent := testAgent(config.RunnerAPI)
	agent.Endpoint = &config.EndpointConfig{URL: "https://example.com/api", Method: http.MethodGet}
	return agent
}

func TestAPIController_RequiresEndpointConfig(t *testing.T) {
	c := NewAPIController(nil)
	agent := testAgent(config.RunnerAPI)

	_, err := c.Run(context.Background(), agent, testCapsule(), Request{})

	require.Error(t, err)
	assert.Equal(t, errs.BadRequest, errs.KindOf(err))
}

func TestAPIController_SuccessfulGetReturnsBodyAndStatus(t *testing.T) {
	rt := &fakeRoundTripper{responses: []roundTripResult{{status: 200, body: `{"ok":true}`}}}
	c := NewAPIController(clientWith(rt))

	out, err := c.Run(context.Background(), testAPIAgent(), testCapsule(), Request{})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(out.Content))
	assert.Equal(t, 200, out.Extra["statusCode"])
	assert.Equal(t, 1, rt.calls)
}

func TestAPIController_RetriesOnceForFailedIdempotentGet(t *testing.T) {
	rt := &fakeRoundTripper{responses: []roundTripResult{
		{status: 503, body: "unavailable"},
		{status: 200, body: "ok"},
	}}
	c := NewAPIController(clientWith(rt))

	start := time.Now()
	out, err := c.Run(context.Background(), testAPIAgent(), testCapsule(), Request{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(out.Content))
	assert.Equal(t, 2, rt.calls)
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestAPIController_DoesNotRetryNonIdempotentPost(t *testing.T) {
	rt := &fakeRoundTripper{responses: []roundTripResult{{status: 503, body: "unavailable"}}}
	agent := testAgent(config.RunnerAPI)
	agent.Endpoint = &config.EndpointConfig{URL: "https://example.com/api", Method: http.MethodPost}
	c := NewAPIController(clientWith(rt))

	_, err := c.Run(context.Background(), agent, testCapsule(), Request{Payload: map[string]any{"a": 1}})

	require.Error(t, err)
	assert.Equal(t, 1, rt.calls)
}

func TestAPIController_ServerErrorIsUpstreamFailure(t *testing.T) {
	rt := &fakeRoundTripper{responses: []roundTripResult{{status: 500, body: "boom"}, {status: 500, body: "boom"}}}
	c := NewAPIController(clientWith(rt))

	_, err := c.Run(context.Background(), testAPIAgent(), testCapsule(), Request{})

	require.Error(t, err)
	assert.Equal(t, errs.UpstreamFailure, errs.KindOf(err))
}

func TestAPIController_ClientErrorIsInternal(t *testing.T) {
	rt := &fakeRoundTripper{responses: []roundTripResult{{status: 404, body: "not found"}, {status: 404, body: "not found"}}}
	c := NewAPIController(clientWith(rt))

	_, err := c.Run(context.Background(), testAPIAgent(), testCapsule(), Request{})

	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}
