package api

import (
	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// taskDispatchResponse is the wire body spec.md §6 returns from
// POST /agents/:org/:agentSlug/tasks.
type taskDispatchResponse struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload"`
	Context capsule.Raw    `json:"context"`
}

// llmGenerateResponse is the wire body returned from POST /llm/generate.
// Response and Content carry the same reversed text; Content is kept for
// callers that read the field name literally out of spec.md §6.
type llmGenerateResponse struct {
	Response string             `json:"response"`
	Content  string             `json:"content"`
	Metadata llmgateway.Metadata `json:"metadata"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Checks        map[string]HealthCheck `json:"checks"`
	Configuration ConfigurationStats     `json:"configuration,omitempty"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ConfigurationStats summarizes the loaded agent/PII configuration for
// GET /health, mirrored from config.Stats.
type ConfigurationStats struct {
	Agents      int `json:"agents"`
	PIIPatterns int `json:"piiPatterns"`
}
