package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

const defaultAPITimeout = 30 * time.Second

// APIController performs an outbound HTTP call per the agent's endpoint
// config (spec.md §4.6). Transient failures on idempotent GETs are
// retried once with a 1s delay; non-idempotent calls (anything but GET)
// are never retried.
type APIController struct {
	client *http.Client
}

// NewAPIController builds an APIController. client may be nil to use
// http.DefaultClient (tests inject a fake RoundTripper instead).
func NewAPIController(client *http.Client) *APIController {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIController{client: client}
}

func (c *APIController) Type() config.RunnerType { return config.RunnerAPI }

func (c *APIController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	if agent.Endpoint == nil {
		return Output{}, errs.New(errs.BadRequest, "api runner requires agent.endpoint configuration")
	}
	ep := *agent.Endpoint

	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := defaultAPITimeout
	if ep.TimeoutSec > 0 {
		timeout = time.Duration(ep.TimeoutSec) * time.Second
	}

	var body []byte
	if method != http.MethodGet && method != http.MethodHead {
		encoded, err := json.Marshal(req.Payload)
		if err != nil {
			return Output{}, errs.Wrap(errs.BadRequest, "failed to encode request payload", err)
		}
		body = encoded
	}

	status, respBody, err := c.doOnce(ctx, method, ep, timeout, body)
	if kind := errs.KindOf(err); err != nil && method == http.MethodGet && (kind == errs.UpstreamFailure || kind == errs.UpstreamTimeout) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return Output{}, errs.Wrap(errs.Cancelled, "api runner call cancelled during retry delay", ctx.Err())
		}
		status, respBody, err = c.doOnce(ctx, method, ep, timeout, body)
	}
	if err != nil {
		return Output{}, err
	}

	return Output{
		Content: respBody,
		Extra:   map[string]any{"statusCode": status},
	}, nil
}

func (c *APIController) doOnce(ctx context.Context, method string, ep config.EndpointConfig, timeout time.Duration, body []byte) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, ep.URL, reader)
	if err != nil {
		return 0, nil, errs.Wrap(errs.BadRequest, "failed to build outbound request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range ep.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return 0, nil, errs.Wrap(errs.UpstreamTimeout, "outbound call timed out", err)
		}
		return 0, nil, errs.Wrap(errs.UpstreamFailure, "outbound call failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errs.Wrap(errs.Internal, "failed to read response body", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, respBody, errs.New(errs.UpstreamFailure, "outbound call returned "+resp.Status)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, respBody, errs.New(errs.Internal, "outbound call returned "+resp.Status)
	}
	return resp.StatusCode, respBody, nil
}
