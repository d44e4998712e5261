package llmgateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/obsmetrics"
	"github.com/agentgov/pipeline/pkg/pii"
)

// Options carries the recognized per-call overrides from spec.md §4.4.
type Options struct {
	Temperature        float64
	MaxTokens          int
	Provider           string
	Model              string
	CallerType         string
	CallerName         string
	DataClassification string
}

// Metadata describes the outcome of a completed generate() call, returned
// alongside its content.
type Metadata struct {
	Provider          string
	Model             string
	PromptTokens      int
	CompletionTokens  int
	CachedInputTokens int
	ThinkingTokens    int
	CostCents         float64
	LatencyMS         int64
	Status            string // completed | cancelled | failed
}

// EventEmitter is the subset of the Observability Bus the gateway pushes
// to. Declared here, implemented by pkg/obsbus, to avoid an import cycle.
type EventEmitter interface {
	Emit(ctx context.Context, cap capsule.Capsule, eventType string, payload map[string]any)
}

// UsageRecorder is the subset of the Artifact Store the gateway appends
// usage to.
type UsageRecorder interface {
	AppendUsageRecord(ctx context.Context, r UsageRecordInput) error
}

// UsageRecordInput is the gateway's view of a persisted usage row, mapped
// 1:1 by the caller's adapter onto pkg/store.UsageRecord.
type UsageRecordInput struct {
	OrgSlug           string
	UserID            string
	ConversationID    string
	AgentSlug         string
	Provider          string
	Model             string
	CallerType        string
	CallerName        string
	PromptTokens      int
	CompletionTokens  int
	CachedInputTokens int
	ThinkingTokens    int
	CostCents         float64
	LatencyMS         int64
	Status            string
}

const defaultProviderTimeout = 120 * time.Second

// Gateway implements the single `generate` entry point from spec.md §4.4.
type Gateway struct {
	providers map[string]Provider
	cfg       *config.Config
	pii       *pii.Transformer
	events    EventEmitter
	usage     UsageRecorder
	timeout   time.Duration
	metrics   *obsmetrics.Metrics
}

// SetMetrics wires the ambient Prometheus collectors into the gateway. A
// nil *obsmetrics.Metrics (the default) makes every recording call a
// no-op, so this is optional to call.
func (g *Gateway) SetMetrics(m *obsmetrics.Metrics) { g.metrics = m }

// New builds a Gateway over the given provider adapters, keyed by
// Provider.Name().
func New(providers []Provider, cfg *config.Config, transformer *pii.Transformer, events EventEmitter, usage UsageRecorder) *Gateway {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Gateway{
		providers: byName,
		cfg:       cfg,
		pii:       transformer,
		events:    events,
		usage:     usage,
		timeout:   defaultProviderTimeout,
	}
}

// Generate runs the seven-step pipeline from spec.md §4.4: emit started,
// pseudonymize, call the provider with retry, reverse, price, account,
// emit completed.
func (g *Gateway) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options, cap capsule.Capsule) (string, Metadata, error) {
	providerName, model, err := g.resolveProviderModel(opts, cap.OrgSlug)
	if err != nil {
		return "", Metadata{}, err
	}
	p, ok := g.providers[providerName]
	if !ok {
		return "", Metadata{}, errs.New(errs.Unconfigured, "no provider adapter registered for "+providerName)
	}

	g.events.Emit(ctx, cap, "agent.llm.started", map[string]any{"provider": providerName, "model": model})

	pseudoSystem, err := g.pii.Pseudonymize(ctx, systemPrompt, cap.OrgSlug, cap.AgentSlug)
	if err != nil {
		return "", Metadata{}, errs.Wrap(errs.Internal, "pseudonymizing system prompt", err)
	}
	pseudoUser, err := g.pii.Pseudonymize(ctx, userPrompt, cap.OrgSlug, cap.AgentSlug)
	if err != nil {
		return "", Metadata{}, errs.Wrap(errs.Internal, "pseudonymizing user prompt", err)
	}
	mappings := append(append([]pii.Mapping{}, pseudoSystem.Mappings...), pseudoUser.Mappings...)

	start := time.Now()
	resp, callErr := g.callWithRetry(ctx, p, Request{
		SystemPrompt: pseudoSystem.Text,
		UserPrompt:   pseudoUser.Text,
		Model:        model,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	})
	latency := time.Since(start).Milliseconds()

	if callErr != nil {
		status := "failed"
		if errors.Is(ctx.Err(), context.Canceled) {
			status = "cancelled"
		}
		g.recordAndEmit(ctx, cap, providerName, model, opts, Usage{}, 0, latency, status)
		return "", Metadata{}, callErr
	}

	content := g.pii.Reverse(resp.Content, mappings)
	cost := g.cfg.Model().PricingFor(providerName, model).CostCents(
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.CachedInputTokens, resp.Usage.ThinkingTokens,
	)

	status := "completed"
	if ctx.Err() != nil {
		status = "cancelled"
	}

	meta := g.recordAndEmit(ctx, cap, providerName, model, opts, resp.Usage, cost, latency, status)
	return content, meta, nil
}

// RecordUsage exposes recordUsage(record, capsule) from spec.md §4.4 for
// external callers that invoke specialized models directly without going
// through Generate.
func (g *Gateway) RecordUsage(ctx context.Context, providerName, model string, usage Usage, costCents float64, latencyMS int64, opts Options, cap capsule.Capsule) {
	g.recordAndEmit(ctx, cap, providerName, model, opts, usage, costCents, latencyMS, "completed")
}

func (g *Gateway) recordAndEmit(ctx context.Context, cap capsule.Capsule, providerName, model string, opts Options, usage Usage, costCents float64, latencyMS int64, status string) Metadata {
	meta := Metadata{
		Provider: providerName, Model: model,
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens,
		CachedInputTokens: usage.CachedInputTokens, ThinkingTokens: usage.ThinkingTokens,
		CostCents: costCents, LatencyMS: latencyMS, Status: status,
	}

	if err := g.usage.AppendUsageRecord(ctx, UsageRecordInput{
		OrgSlug: cap.OrgSlug, UserID: cap.UserID, ConversationID: cap.ConversationID, AgentSlug: cap.AgentSlug,
		Provider: providerName, Model: model, CallerType: opts.CallerType, CallerName: opts.CallerName,
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens,
		CachedInputTokens: usage.CachedInputTokens, ThinkingTokens: usage.ThinkingTokens,
		CostCents: costCents, LatencyMS: latencyMS, Status: status,
	}); err != nil {
		g.events.Emit(ctx, cap, "agent.llm.usage_record_failed", map[string]any{"error": err.Error()})
	}

	eventType := "agent.llm.completed"
	if status != "completed" {
		eventType = "agent.llm." + status
	}
	g.events.Emit(ctx, cap, eventType, map[string]any{
		"provider": providerName, "model": model, "costCents": costCents, "latencyMs": latencyMS,
	})

	g.metrics.RecordLLMCall(providerName, model, status, time.Duration(latencyMS)*time.Millisecond)
	g.metrics.RecordLLMTokens(providerName, model, usage.PromptTokens, usage.CompletionTokens)

	return meta
}

// resolveProviderModel applies spec.md §4.4's fallback: explicit options
// win; otherwise fall back to the org-scoped global config; if neither
// supplies both, fail with Unconfigured. There are no further defaults.
func (g *Gateway) resolveProviderModel(opts Options, orgSlug string) (provider, model string, err error) {
	provider, model = opts.Provider, opts.Model
	if provider != "" && model != "" {
		return provider, model, nil
	}
	global, ok := g.cfg.Model().Resolve(orgSlug)
	if !ok {
		return "", "", errs.New(errs.Unconfigured, "no provider/model configured for org "+orgSlug)
	}
	if provider == "" {
		provider = global.Provider
	}
	if model == "" {
		model = global.Model
	}
	if provider == "" || model == "" {
		return "", "", errs.New(errs.Unconfigured, "no provider/model configured for org "+orgSlug)
	}
	return provider, model, nil
}

// callWithRetry calls p.Complete with timeout T_provider, retrying
// errs.UpstreamFailure/errs.UpstreamTimeout with exponential backoff
// (base=500ms, factor=2, jitter=±20%, max_tries=3). All other errors are
// terminal.
func (g *Gateway) callWithRetry(ctx context.Context, p Provider, req Request) (Response, error) {
	var resp Response
	var lastErr error

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not by elapsed time
	bo := backoff.WithMaxRetries(policy, 2) // 2 retries + 1 initial attempt = max_tries=3

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		r, err := p.Complete(callCtx, req)
		if err == nil {
			resp = r
			return nil
		}
		lastErr = err
		kind := errs.KindOf(err)
		if kind == errs.UpstreamFailure || kind == errs.UpstreamTimeout {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(attempt, backoff.WithContext(bo, ctx)); err != nil {
		return Response{}, lastErr
	}
	return resp, nil
}
