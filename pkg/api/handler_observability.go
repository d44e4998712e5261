package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/obsbus"
)

// observabilityStreamHandler handles GET /observability/stream, pushing
// ObservabilityEvent JSON objects as server-sent events in the order the
// bus delivers them to this subscriber (spec.md §6, §4.5).
func (s *Server) observabilityStreamHandler(c *echo.Context) error {
	filter := obsbus.Filter{
		UserID:         c.QueryParam("userId"),
		AgentSlug:      c.QueryParam("agentSlug"),
		ConversationID: c.QueryParam("conversationId"),
	}

	events, unsubscribe := s.bus.Subscribe(filter)
	defer unsubscribe()

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := resp.Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := resp.Write(data); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("\n\n")); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

// observabilityHistoryHandler handles GET /observability/history, a
// paginated read of the durable sink behind the bus. spec.md §6 lists
// since/until/limit but, per its own "abstract shape; framing supplied
// externally" preamble, the query also requires orgSlug to scope the read
// — both obsbus.Bus.History and the underlying store key every row by org.
func (s *Server) observabilityHistoryHandler(c *echo.Context) error {
	orgSlug := c.QueryParam("orgSlug")
	if orgSlug == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orgSlug is required")
	}

	filter := obsbus.HistoryFilter{}
	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since")
		}
		filter.Since = t
	}
	if until := c.QueryParam("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid until")
		}
		filter.Until = t
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = n
	}

	events, err := s.bus.History(c.Request().Context(), orgSlug, filter)
	if err != nil {
		return mapErr(err)
	}

	return c.JSON(http.StatusOK, events)
}
