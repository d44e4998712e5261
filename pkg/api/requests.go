package api

import (
	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// taskDispatchRequest is the wire body for POST /agents/:org/:agentSlug/tasks.
// Action and taskId travel inside Payload per spec.md §6's abstract shape;
// dispatchTaskHandler pulls Action out and folds UserMessage into
// Payload["input"] before handing off to the Dispatcher.
type taskDispatchRequest struct {
	Mode           string         `json:"mode"`
	ConversationID string         `json:"conversationId"`
	UserMessage    string         `json:"userMessage,omitempty"`
	Payload        map[string]any `json:"payload"`
	Context        capsule.Raw    `json:"context"`
}

// llmGenerateRequest is the wire body for POST /llm/generate.
type llmGenerateRequest struct {
	SystemPrompt string              `json:"systemPrompt"`
	UserPrompt   string              `json:"userPrompt"`
	Context      capsule.Raw         `json:"context"`
	Options      llmgateway.Options  `json:"options"`
}

// llmUsageRequest is the wire body for POST /llm/usage: a UsageRecord
// without the server-assigned timestamp.
type llmUsageRequest struct {
	OrgSlug           string  `json:"orgSlug"`
	UserID            string  `json:"userId"`
	ConversationID    string  `json:"conversationId"`
	AgentSlug         string  `json:"agentSlug"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	CallerType        string  `json:"callerType"`
	CallerName        string  `json:"callerName"`
	PromptTokens      int     `json:"promptTokens"`
	CompletionTokens  int     `json:"completionTokens"`
	CachedInputTokens int     `json:"cachedInputTokens"`
	ThinkingTokens    int     `json:"thinkingTokens"`
	CostCents         float64 `json:"costCents"`
	LatencyMS         int     `json:"latencyMs"`
	Status            string  `json:"status"`
}

// webhookStatusRequest is the wire body for POST /webhooks/status: inbound
// progress events from external runners.
type webhookStatusRequest struct {
	TaskID       string         `json:"taskId"`
	Status       string         `json:"status"`
	Context      capsule.Raw    `json:"context"`
	Message      string         `json:"message,omitempty"`
	Progress     *float64       `json:"progress,omitempty"`
	Step         string         `json:"step,omitempty"`
	ExecutionID  string         `json:"executionId,omitempty"`
	WorkflowID   string         `json:"workflowId,omitempty"`
	WorkflowName string         `json:"workflowName,omitempty"`
}
