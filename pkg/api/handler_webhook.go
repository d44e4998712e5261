package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/obsbus"
	"github.com/agentgov/pipeline/pkg/store"
)

// webhookStatusHandler handles POST /webhooks/status: asynchronous,
// out-of-band progress and terminal-status events from an external runner
// (spec.md §6). This is a separate channel from the synchronous
// ExternalController call path — an external agent that accepted a task
// reports its progress and outcome here instead of over the original A2A
// response.
func (s *Server) webhookStatusHandler(c *echo.Context) error {
	var body webhookStatusRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TaskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "taskId is required")
	}

	switch store.TaskStatus(body.Status) {
	case store.TaskSucceeded:
		if err := s.tasks.CompleteTask(c.Request().Context(), body.TaskID); err != nil {
			return mapErr(err)
		}
	case store.TaskFailed:
		if err := s.tasks.FailTask(c.Request().Context(), body.TaskID, errs.Internal, body.Message); err != nil {
			return mapErr(err)
		}
	case store.TaskCancelled:
		if err := s.tasks.CancelTask(c.Request().Context(), body.TaskID); err != nil {
			return mapErr(err)
		}
	case store.TaskRunning, store.TaskPending:
		// Progress-only update; no terminal transition, fall through to
		// the observability push below.
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unrecognized status")
	}

	s.bus.Push(obsbus.Event{
		OrgSlug:        body.Context.OrgSlug,
		UserID:         body.Context.UserID,
		ConversationID: body.Context.ConversationID,
		AgentSlug:      body.Context.AgentSlug,
		TaskID:         body.TaskID,
		SourceApp:      body.WorkflowName,
		EventType:      "task.webhook_status",
		Status:         body.Status,
		Message:        body.Message,
		Progress:       body.Progress,
		Step:           body.Step,
		Payload: map[string]any{
			"executionId":  body.ExecutionID,
			"workflowId":   body.WorkflowID,
			"workflowName": body.WorkflowName,
		},
	})

	return c.NoContent(http.StatusAccepted)
}
