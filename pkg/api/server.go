// Package api provides the HTTP binding for the governed execution
// pipeline: the six inbound surfaces of spec.md §6, served over Echo v5.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/dispatch"
	"github.com/agentgov/pipeline/pkg/llmgateway"
	"github.com/agentgov/pipeline/pkg/obsbus"
	"github.com/agentgov/pipeline/pkg/obsmetrics"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker is the subset of the Artifact Store the health endpoint
// pings. Declared here, implemented by *pkg/store.Store directly.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server binding spec.md §6's six inbound surfaces.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	gateway    *llmgateway.Gateway
	bus        *obsbus.Bus
	db         HealthChecker
	usage      UsageStore
	tasks      WebhookTaskStore
	metrics    *obsmetrics.Metrics
}

// NewServer creates a new API server with Echo v5, registering every route
// up front. Dependencies are wired afterward via the Set* methods, so
// cmd/govpipe can construct the Server before every backing service is
// ready and validate completeness with ValidateWiring before Start.
func NewServer(cfg *config.Config) *Server {
	s := &Server{echo: echo.New(), cfg: cfg}
	s.echo.Use(middleware.BodyLimit(4 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(metricsMiddleware(func() *obsmetrics.Metrics { return s.metrics }))
	s.setupRoutes()
	return s
}

// SetDispatcher wires the Dispatcher (C7) backing POST /agents/:org/:agentSlug/tasks.
func (s *Server) SetDispatcher(d *dispatch.Dispatcher) { s.dispatcher = d }

// SetGateway wires the LLM Gateway (C4) backing POST /llm/generate.
func (s *Server) SetGateway(g *llmgateway.Gateway) { s.gateway = g }

// SetBus wires the Observability Bus (C5) backing the /observability/*
// surfaces and the webhook's progress emission.
func (s *Server) SetBus(b *obsbus.Bus) { s.bus = b }

// SetHealthChecker wires the database ping used by GET /health.
func (s *Server) SetHealthChecker(db HealthChecker) { s.db = db }

// SetUsageStore wires the usage sink backing POST /llm/usage.
func (s *Server) SetUsageStore(u UsageStore) { s.usage = u }

// SetTaskStore wires the task state machine backing POST /webhooks/status.
func (s *Server) SetTaskStore(t WebhookTaskStore) { s.tasks = t }

// SetMetrics wires the ambient Prometheus collectors recorded by every
// request. Optional: a nil *obsmetrics.Metrics (the default) disables
// recording without affecting request handling.
func (s *Server) SetMetrics(m *obsmetrics.Metrics) { s.metrics = m }

// ValidateWiring checks that every required service has been wired via its
// Set* method. Call this after all Set* calls and before Start/StartWithListener.
func (s *Server) ValidateWiring() error {
	var problems []error
	if s.dispatcher == nil {
		problems = append(problems, fmt.Errorf("dispatcher not set (call SetDispatcher)"))
	}
	if s.gateway == nil {
		problems = append(problems, fmt.Errorf("gateway not set (call SetGateway)"))
	}
	if s.bus == nil {
		problems = append(problems, fmt.Errorf("bus not set (call SetBus)"))
	}
	if s.db == nil {
		problems = append(problems, fmt.Errorf("health checker not set (call SetHealthChecker)"))
	}
	if s.usage == nil {
		problems = append(problems, fmt.Errorf("usage store not set (call SetUsageStore)"))
	}
	if s.tasks == nil {
		problems = append(problems, fmt.Errorf("task store not set (call SetTaskStore)"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(problems...))
	}
	return nil
}

// setupRoutes registers every inbound surface from spec.md §6.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	s.echo.POST("/agents/:org/:agentSlug/tasks", s.dispatchTaskHandler)
	s.echo.POST("/llm/generate", s.llmGenerateHandler)
	s.echo.POST("/llm/usage", s.llmUsageHandler)
	s.echo.GET("/observability/stream", s.observabilityStreamHandler)
	s.echo.GET("/observability/history", s.observabilityHistoryHandler)
	s.echo.POST("/webhooks/status", s.webhookStatusHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health. Only this pipeline's own database
// connectivity is checked; upstream providers and external agents are
// excluded so a flaky third party never flips the pipeline itself
// unhealthy in front of an orchestrator's liveness probe.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	if err := s.db.Ping(reqCtx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status: "unhealthy",
			Checks: map[string]HealthCheck{"database": {Status: "unhealthy", Message: err.Error()}},
		})
	}

	stats := s.cfg.Stats()
	return c.JSON(http.StatusOK, &HealthResponse{
		Status: "healthy",
		Checks: map[string]HealthCheck{"database": {Status: "healthy"}},
		Configuration: ConfigurationStats{
			Agents:      stats.Agents,
			PIIPatterns: stats.PIIPatterns,
		},
	})
}

// metricsHandler handles GET /metrics, the Prometheus scrape endpoint for
// this process's ambient telemetry (pkg/obsmetrics) — distinct from
// spec.md §6's tenant-facing /observability/* surfaces.
func (s *Server) metricsHandler(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
