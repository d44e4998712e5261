package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/dispatch"
	"github.com/agentgov/pipeline/pkg/runner"
)

// dispatchTaskHandler handles POST /agents/:org/:agentSlug/tasks, the
// inbound surface spec.md §6 funnels through the Dispatcher. The :org and
// :agentSlug path params are informational only — the authoritative
// orgSlug/agentSlug pair travels in the request's capsule and is what
// capsule.Accept and the agent registry lookup actually use.
func (s *Server) dispatchTaskHandler(c *echo.Context) error {
	var body taskDispatchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	payload := body.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	if body.UserMessage != "" {
		if _, ok := payload["input"]; !ok {
			payload["input"] = body.UserMessage
		}
	}

	action, _ := payload["action"].(string)

	resp, err := s.dispatcher.Dispatch(c.Request().Context(), extractBearerUser(c), dispatch.Request{
		Capsule: body.Context,
		Mode:    runner.Mode(body.Mode),
		Action:  action,
		Payload: payload,
	})
	if err != nil {
		return mapErr(err)
	}

	return c.JSON(http.StatusOK, &taskDispatchResponse{
		Success: resp.Success,
		Payload: resp.Payload,
		Context: resp.Capsule,
	})
}
