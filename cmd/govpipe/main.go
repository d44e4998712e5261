// Command govpipe is the governed agent execution pipeline's process
// entrypoint: it loads configuration, wires every component (C1-C8) in
// dependency order, and serves the HTTP API until signalled to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/agentgov/pipeline/pkg/a2aclient"
	"github.com/agentgov/pipeline/pkg/api"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/dispatch"
	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
	"github.com/agentgov/pipeline/pkg/llmgateway/provider"
	"github.com/agentgov/pipeline/pkg/obsbus"
	"github.com/agentgov/pipeline/pkg/obsmetrics"
	"github.com/agentgov/pipeline/pkg/obstrace"
	"github.com/agentgov/pipeline/pkg/pii"
	"github.com/agentgov/pipeline/pkg/retention"
	"github.com/agentgov/pipeline/pkg/runner"
	"github.com/agentgov/pipeline/pkg/store"
)

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "govpipe",
		Short: "Governed agent execution pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configDir)
		},
	}
	rootCmd.Flags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory containing agents.yaml and settings.yaml")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("govpipe exited with error", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// getEnv returns the environment variable named key, or fallback if unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// exitCodeFor maps an error that escaped run() to a process exit code
// (spec.md §7): 1 for configuration errors (run() wraps every
// config.Initialize failure as errs.Unconfigured; BadRequest is treated the
// same way), 2 for every other runtime failure.
func exitCodeFor(err error) int {
	switch errs.KindOf(err) {
	case errs.BadRequest, errs.Unconfigured:
		return 1
	default:
		return 2
	}
}

func run(ctx context.Context, configDir string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return errs.Wrap(errs.Unconfigured, "loading configuration", err)
	}
	stats := cfg.Stats()
	slog.Info("configuration loaded", "agents", stats.Agents, "pii_patterns", stats.PIIPatterns)

	if err := config.WatchAgents(ctx, configDir, cfg); err != nil {
		slog.Warn("agents.yaml hot reload disabled", "error", err)
	}

	_, shutdownTracing, err := obstrace.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var metrics *obsmetrics.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = obsmetrics.New(cfg.Telemetry, "govpipe")
	}

	artifactStore, err := store.NewStore(ctx, storeConfigFromEnv())
	if err != nil {
		return fmt.Errorf("connecting to artifact store: %w", err)
	}
	defer artifactStore.Close()

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		defer redisClient.Close()
	}

	retentionSvc := retention.NewService(cfg.Retention, artifactStore)
	retentionSvc.Start(ctx)
	defer retentionSvc.Stop()

	transformer := buildPIITransformer(cfg, artifactStore, redisClient)

	bus := buildBus(cfg, artifactStore, redisClient)
	bus.SetMetrics(metrics)
	go bus.Run(ctx)

	gateway, err := buildGateway(cfg, artifactStore, transformer, bus)
	if err != nil {
		return fmt.Errorf("building llm gateway: %w", err)
	}
	gateway.SetMetrics(metrics)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	registry := runner.NewRegistry()
	registry.Register(config.RunnerAPI, runner.NewAPIController(httpClient))
	registry.Register(config.RunnerMedia, runner.NewMediaController(httpClient))
	registry.Register(config.RunnerContext, runner.NewContextController(gateway, nil, 0))
	// RunnerRAG is intentionally left unregistered: spec.md's rag runner
	// needs a vector/retrieval backend, and no pack example wires a real
	// one (kadirpekel-hector only references Qdrant in a throwaway seed
	// script, never as an importable client). An agent configured with
	// runner_type: rag will fail at dispatch with errs.NotFound until a
	// deployment-specific RetrievalStore is wired here.

	a2a := a2aclient.New(httpClient, nil)
	registry.Register(config.RunnerExternal, runner.NewExternalController(a2a))

	taskStore := runner.StoreAdapter{
		StartTaskFunc:    artifactStore.StartTask,
		CompleteTaskFunc: artifactStore.CompleteTask,
		CancelTaskFunc:   artifactStore.CancelTask,
		FailTaskFunc: func(ctx context.Context, id, kind, message string) error {
			return artifactStore.FailTask(ctx, id, errs.Kind(kind), message)
		},
		CreatePlanFunc: func(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (runner.PlanRef, error) {
			plan, version, err := artifactStore.CreatePlan(ctx, conversationID, orgSlug, userID, agentSlug, content, promptInputs)
			if err != nil {
				return runner.PlanRef{}, err
			}
			return runner.PlanRef{ID: plan.ID, VersionNumber: version.VersionNumber}, nil
		},
		EditPlanFunc: func(ctx context.Context, planID string, content, promptInputs []byte) (runner.PlanRef, error) {
			version, err := artifactStore.EditPlan(ctx, planID, content, promptInputs)
			if err != nil {
				return runner.PlanRef{}, err
			}
			return runner.PlanRef{ID: planID, VersionNumber: version.VersionNumber}, nil
		},
		CreateDeliverableFunc: func(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (runner.DeliverableRef, error) {
			deliverable, version, err := artifactStore.CreateDeliverable(ctx, conversationID, orgSlug, userID, agentSlug, deliverableType, content, promptInputs)
			if err != nil {
				return runner.DeliverableRef{}, err
			}
			return runner.DeliverableRef{ID: deliverable.ID, VersionNumber: version.VersionNumber}, nil
		},
		EditDeliverableFunc: func(ctx context.Context, deliverableID string, content, promptInputs []byte) (runner.DeliverableRef, error) {
			version, err := artifactStore.EditDeliverable(ctx, deliverableID, content, promptInputs)
			if err != nil {
				return runner.DeliverableRef{}, err
			}
			return runner.DeliverableRef{ID: deliverableID, VersionNumber: version.VersionNumber}, nil
		},
	}
	baseRunner := runner.NewBaseRunner(registry, taskStore, bus)

	dispatcher := dispatch.New(cfg, artifactStore, baseRunner)
	dispatcher.SetMetrics(metrics)

	// The orchestrator runner delegates back through the Dispatcher, and
	// the Dispatcher is built over the Registry that resolves the
	// orchestrator runner: register it last, once dispatcher exists.
	// Registry.Register only ever writes a map entry on the single
	// goroutine wiring the process up, before any request is served, so
	// this late registration is race-free.
	registry.Register(config.RunnerOrchestrator, runner.NewOrchestratorController(dispatcher))

	server := api.NewServer(cfg)
	server.SetDispatcher(dispatcher)
	server.SetGateway(gateway)
	server.SetBus(bus)
	server.SetHealthChecker(artifactStore)
	server.SetUsageStore(artifactStore)
	server.SetTaskStore(artifactStore)
	server.SetMetrics(metrics)

	if err := server.ValidateWiring(); err != nil {
		return fmt.Errorf("server wiring incomplete: %w", err)
	}

	addr := cfg.Server.Addr
	if addr == "" {
		addr = config.DefaultServerAddr
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// storeConfigFromEnv reads the Artifact Store's Postgres connection
// settings, following the teacher's own getEnv-with-fallback convention.
func storeConfigFromEnv() store.Config {
	port, err := strconv.Atoi(getEnv("PGPORT", "5432"))
	if err != nil {
		port = 5432
	}
	return store.Config{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     port,
		User:     getEnv("PGUSER", "govpipe"),
		Password: os.Getenv("PGPASSWORD"),
		Database: getEnv("PGDATABASE", "govpipe"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}
}

// buildPIITransformer wires the PII Transformer's dictionary loader: the
// store is always the source of truth, wrapped in a Redis-backed cache
// when REDIS_ADDR is configured.
func buildPIITransformer(cfg *config.Config, artifactStore *store.Store, redisClient *redis.Client) *pii.Transformer {
	var loader pii.DictionaryLoader = pii.StoreAdapter{Load: func(ctx context.Context, orgSlug, agentSlug string) ([]pii.DictionaryEntry, error) {
		rows, err := artifactStore.LoadPIIDictionary(ctx, orgSlug, agentSlug)
		if err != nil {
			return nil, err
		}
		entries := make([]pii.DictionaryEntry, len(rows))
		for i, row := range rows {
			entries[i] = pii.DictionaryEntry{Term: row.Term, Pseudonym: row.Pseudonym}
		}
		return entries, nil
	}}
	if redisClient != nil {
		loader = pii.NewCachedLoader(redisClient, loader, cfg.PII.DictionaryCacheTTL)
	}
	return pii.New(cfg.PII, loader)
}

// buildGateway constructs one Provider adapter per upstream with
// credentials configured in the environment, skipping any whose API key
// (or AWS credentials, for Bedrock) is absent — an agent pinned to an
// unconfigured provider fails at dispatch with errs.Unconfigured rather
// than the process refusing to start.
func buildGateway(cfg *config.Config, artifactStore *store.Store, transformer *pii.Transformer, events llmgateway.EventEmitter) (*llmgateway.Gateway, error) {
	var providers []llmgateway.Provider

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, provider.NewAnthropic(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, provider.NewOpenAI(key))
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for bedrock: %w", err)
		}
		providers = append(providers, provider.NewBedrock(bedrockruntime.NewFromConfig(awsCfg)))
	}

	usage := llmgateway.StoreAdapter{Append: func(ctx context.Context, r llmgateway.UsageRecordInput) error {
		_, err := artifactStore.AppendUsageRecord(ctx, store.UsageRecord{
			OrgSlug: r.OrgSlug, UserID: r.UserID, ConversationID: r.ConversationID, AgentSlug: r.AgentSlug,
			Provider: r.Provider, Model: r.Model, CallerType: r.CallerType, CallerName: r.CallerName,
			PromptTokens: r.PromptTokens, CompletionTokens: r.CompletionTokens,
			CachedInputTokens: r.CachedInputTokens, ThinkingTokens: r.ThinkingTokens,
			CostCents: r.CostCents, LatencyMS: int(r.LatencyMS), Status: r.Status,
		})
		return err
	}}

	return llmgateway.New(providers, cfg, transformer, events, usage), nil
}

// buildBus wires the Observability Bus's durable sink. redisClient is not
// used: the bus is built with a nil UsernameResolver, so its events carry no
// display name.
func buildBus(cfg *config.Config, artifactStore *store.Store, redisClient *redis.Client) *obsbus.Bus {
	sink := obsbus.StoreAdapter{
		Append: func(ctx context.Context, e obsbus.Event) error {
			payload, err := json.Marshal(e.Payload)
			if err != nil {
				return fmt.Errorf("encoding event payload: %w", err)
			}
			return artifactStore.AppendEvent(ctx, store.ObservabilityEventRow{
				OrgSlug: e.OrgSlug, UserID: e.UserID, ConversationID: e.ConversationID,
				AgentSlug: e.AgentSlug, TaskID: e.TaskID, SourceApp: e.SourceApp,
				EventType: e.EventType, Status: e.Status, Message: e.Message,
				Progress: e.Progress, Step: e.Step, Payload: payload, CreatedAt: e.CreatedAt,
			})
		},
		Query: func(ctx context.Context, orgSlug string, filter obsbus.HistoryFilter) ([]obsbus.Event, error) {
			rows, err := artifactStore.History(ctx, orgSlug, store.HistoryFilter{Since: filter.Since, Until: filter.Until, Limit: filter.Limit})
			if err != nil {
				return nil, err
			}
			events := make([]obsbus.Event, len(rows))
			for i, row := range rows {
				var payload map[string]any
				if len(row.Payload) > 0 {
					_ = json.Unmarshal(row.Payload, &payload)
				}
				events[i] = obsbus.Event{
					OrgSlug: row.OrgSlug, UserID: row.UserID, ConversationID: row.ConversationID,
					AgentSlug: row.AgentSlug, TaskID: row.TaskID, SourceApp: row.SourceApp,
					EventType: row.EventType, Status: row.Status, Message: row.Message,
					Progress: row.Progress, Step: row.Step, Payload: payload, CreatedAt: row.CreatedAt,
				}
			}
			return events, nil
		},
	}

	return obsbus.New(
		cfg.Observability.BufferCapacity,
		cfg.Observability.SubscriberQueue,
		sink,
		nil, // no identity/directory service in this module; resolver stays nil until one is wired
		cfg.Observability.UsernameCacheSize,
		cfg.Observability.UsernameCacheTTL,
	)
}
