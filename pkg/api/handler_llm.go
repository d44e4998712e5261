package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/obsbus"
	"github.com/agentgov/pipeline/pkg/store"
)

// llmGenerateHandler handles POST /llm/generate, the direct HTTP binding of
// the LLM Gateway's single generate() entry point (spec.md §4.4).
func (s *Server) llmGenerateHandler(c *echo.Context) error {
	var body llmGenerateRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cap, err := capsule.Accept(body.Context, extractBearerUser(c))
	if err != nil {
		return mapErr(err)
	}

	content, meta, err := s.gateway.Generate(c.Request().Context(), body.SystemPrompt, body.UserPrompt, body.Options, cap)
	if err != nil {
		return mapErr(err)
	}

	return c.JSON(http.StatusOK, &llmGenerateResponse{
		Response: content,
		Content:  content,
		Metadata: meta,
	})
}

// llmUsageHandler handles POST /llm/usage: an external usage report whose
// body matches a UsageRecord without the server-assigned timestamp
// (spec.md §6). This bypasses the Gateway's own generate()-coupled
// RecordUsage, which requires a full Capsule (AgentType, etc.) that this
// surface's wire shape does not carry — it appends directly to the
// Artifact Store and pushes its own observability event.
func (s *Server) llmUsageHandler(c *echo.Context) error {
	var body llmUsageRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.usage.AppendUsageRecord(c.Request().Context(), store.UsageRecord{
		OrgSlug:           body.OrgSlug,
		UserID:            body.UserID,
		ConversationID:    body.ConversationID,
		AgentSlug:         body.AgentSlug,
		Provider:          body.Provider,
		Model:             body.Model,
		CallerType:        body.CallerType,
		CallerName:        body.CallerName,
		PromptTokens:      body.PromptTokens,
		CompletionTokens:  body.CompletionTokens,
		CachedInputTokens: body.CachedInputTokens,
		ThinkingTokens:    body.ThinkingTokens,
		CostCents:         body.CostCents,
		LatencyMS:         body.LatencyMS,
		Status:            body.Status,
	})
	if err != nil {
		return mapErr(err)
	}

	s.bus.Push(obsbus.Event{
		OrgSlug:        rec.OrgSlug,
		UserID:         rec.UserID,
		ConversationID: rec.ConversationID,
		AgentSlug:      rec.AgentSlug,
		EventType:      "llm.usage_reported",
		Status:         rec.Status,
		Payload: map[string]any{
			"provider":     rec.Provider,
			"model":        rec.Model,
			"promptTokens": rec.PromptTokens,
			"costCents":    rec.CostCents,
		},
	})

	return c.JSON(http.StatusCreated, rec)
}
