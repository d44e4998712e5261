package runner

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// MediaController calls an external media-generation endpoint and stores
// the resulting URL/file reference (spec.md §4.6). It reuses the same
// outbound-call mechanics as APIController rather than duplicating them.
type MediaController struct {
	api *APIController
}

// NewMediaController builds a MediaController. client may be nil to use
// http.DefaultClient.
func NewMediaController(client *http.Client) *MediaController {
	return &MediaController{api: NewAPIController(client)}
}

func (c *MediaController) Type() config.RunnerType { return config.RunnerMedia }

// mediaResponse is the expected shape of a media-generation endpoint's
// JSON body: a URL (or file reference) plus whatever metadata it reports.
type mediaResponse struct {
	URL string `json:"url"`
}

func (c *MediaController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	out, err := c.api.Run(ctx, agent, cap, req)
	if err != nil {
		return Output{}, err
	}

	var parsed mediaResponse
	if err := json.Unmarshal(out.Content, &parsed); err != nil || parsed.URL == "" {
		return Output{}, errs.New(errs.Internal, "media endpoint response did not contain a url")
	}

	extra := map[string]any{"deliverableType": "media-ref", "createdBy": "llm"}
	for k, v := range out.Extra {
		extra[k] = v
	}
	return Output{Content: []byte(parsed.URL), Extra: extra}, nil
}
