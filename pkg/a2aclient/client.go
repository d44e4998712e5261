// Package a2aclient implements the External Agent Client (C8): a JSON-RPC
// 2.0 client over HTTP for the `external` runner's calls to agents
// outside the process, plus discovery-document fetch and caching.
//
// Grounded on kadirpekel-hector's pkg/a2a/client.go for HTTP client
// construction, bearer/API-key auth header handling, and
// context-carrying requests, but rewired from that package's typed
// Task/Message REST shape onto the literal `{jsonrpc, method, params, id}`
// envelope spec.md §4.8 mandates.
package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

const defaultCallTimeout = 30 * time.Second

// AuthCredentials mirrors kadirpekel-hector's a2a.AuthCredentials: either a
// bearer token or an API key header, resolved per endpoint by the authFn
// passed to New. cmd/govpipe passes a nil authFn, so its calls send no auth
// header beyond the endpoint's configured Headers.
type AuthCredentials struct {
	Type         string // "bearer" or "apiKey"
	Token        string
	APIKey       string
	APIKeyHeader string // default "X-API-Key"
}

// Client is a JSON-RPC 2.0 client for calling external agents, implementing
// pkg/runner's A2AClient interface.
type Client struct {
	httpClient *http.Client
	auth       func(endpoint config.EndpointConfig) *AuthCredentials
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
// authFn resolves per-endpoint credentials (may be nil for no auth).
func New(httpClient *http.Client, authFn func(endpoint config.EndpointConfig) *AuthCredentials) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, auth: authFn}
}

// rpcRequest is the literal JSON-RPC 2.0 envelope spec.md §4.8 mandates.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

// rpcParams carries the capsule verbatim plus the mode-specific payload
// (spec.md §4.8: "params contains the capsule verbatim plus mode-specific
// payload").
type rpcParams struct {
	Context capsule.Raw    `json:"context"`
	Payload map[string]any `json:"payload"`
}

type rpcResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *rpcError      `json:"error,omitempty"`
	ID      string         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs one JSON-RPC request against endpoint.URL and decodes its
// result, implementing pkg/runner.A2AClient.
func (c *Client) Call(ctx context.Context, endpoint config.EndpointConfig, method string, cap capsule.Capsule, payload map[string]any) (map[string]any, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rpcParams{Context: cap.Raw(), Payload: payload},
		ID:      cap.TraceID,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode json-rpc request", err)
	}

	timeout := defaultCallTimeout
	if endpoint.TimeoutSec > 0 {
		timeout = time.Duration(endpoint.TimeoutSec) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.Wrap(errs.BadRequest, "failed to build json-rpc request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range endpoint.Headers {
		httpReq.Header.Set(k, v)
	}
	c.setAuthHeaders(httpReq, endpoint)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, errs.Wrap(errs.UpstreamTimeout, "a2a call timed out", err)
		}
		return nil, errs.Wrap(errs.UpstreamFailure, "a2a call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to read a2a response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.UpstreamFailure, fmt.Sprintf("a2a call returned %s", resp.Status))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errs.Wrap(errs.UpstreamFailure, "failed to decode json-rpc response", err)
	}
	if decoded.Error != nil {
		return nil, rpcErrorToErrs(*decoded.Error)
	}
	return decoded.Result, nil
}

// rpcErrorToErrs maps JSON-RPC 2.0's standard error codes to this pipeline's
// error kinds exactly per spec.md §4.8.
func rpcErrorToErrs(e rpcError) error {
	var kind errs.Kind
	switch {
	case e.Code == -32600:
		kind = errs.BadRequest
	case e.Code == -32601:
		kind = errs.NotFound
	case e.Code == -32602:
		kind = errs.BadRequest
	case e.Code == -32603:
		kind = errs.Internal
	case e.Code <= -32000 && e.Code >= -32099:
		kind = errs.UpstreamFailure
	default:
		kind = errs.UpstreamFailure
	}
	return errs.New(kind, fmt.Sprintf("a2a error %d: %s", e.Code, e.Message))
}

func (c *Client) setAuthHeaders(req *http.Request, endpoint config.EndpointConfig) {
	if c.auth == nil {
		return
	}
	creds := c.auth(endpoint)
	if creds == nil {
		return
	}
	switch creds.Type {
	case "bearer":
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		}
	case "apiKey":
		header := creds.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		if creds.APIKey != "" {
			req.Header.Set(header, creds.APIKey)
		}
	}
}
