package llmgateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/pii"
)

type noopDictionary struct{}

func (noopDictionary) LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]pii.DictionaryEntry, error) {
	return nil, nil
}

type fakeProvider struct {
	name      string
	responses []Response
	errs      []error
	calls     int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req Request) (Response, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) < len(p.errs) && p.errs[i] != nil {
		return Response{}, p.errs[i]
	}
	if int(i) < len(p.responses) {
		return p.responses[i], nil
	}
	return Response{}, errs.New(errs.Internal, "fakeProvider: no response configured for this call")
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Emit(ctx context.Context, cap capsule.Capsule, eventType string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

type fakeUsage struct {
	mu      sync.Mutex
	records []UsageRecordInput
}

func (f *fakeUsage) AppendUsageRecord(ctx context.Context, r UsageRecordInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func testCapsule() capsule.Capsule {
	return capsule.Capsule{
		OrgSlug: "acme", UserID: "user-1", ConversationID: "conv-1", AgentSlug: "planner",
		AgentType: "context", Provider: capsule.NIL, Model: capsule.NIL,
		TaskID: capsule.NIL, PlanID: capsule.NIL, DeliverableID: capsule.NIL,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Swap(config.NewAgentRegistry(nil), &config.GlobalModelConfig{
		Default: map[string]config.ProviderModel{"*": {Provider: "anthropic", Model: "claude-sonnet"}},
		Pricing: map[string]config.ModelPricing{
			"anthropic/claude-sonnet": {PromptCentsPerMillion: 300, CompletionCentsPerMillion: 1500},
		},
	})
	return cfg
}

func TestGenerate_UsesExplicitProviderAndModelOverGlobalConfig(t *testing.T) {
	p := &fakeProvider{name: "anthropic", responses: []Response{{Content: "hello", Usage: Usage{PromptTokens: 10, CompletionTokens: 5}}}}
	events := &fakeEvents{}
	usage := &fakeUsage{}
	transformer := pii.New(config.PIIConfig{}, noopDictionary{})
	gw := New([]Provider{p}, testConfig(t), transformer, events, usage)

	content, meta, err := gw.Generate(context.Background(), "system", "hi", Options{Provider: "anthropic", Model: "claude-sonnet", CallerType: "runner", CallerName: "context"}, testCapsule())
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "completed", meta.Status)
	assert.InDelta(t, (10*300+5*1500)/1_000_000.0, meta.CostCents, 0.0001)

	require.Len(t, usage.records, 1)
	assert.Equal(t, "completed", usage.records[0].Status)
	assert.Contains(t, events.events, "agent.llm.started")
	assert.Contains(t, events.events, "agent.llm.completed")
}

func TestGenerate_FallsBackToGlobalConfigWhenOptionsOmitProviderAndModel(t *testing.T) {
	p := &fakeProvider{name: "anthropic", responses: []Response{{Content: "hi there"}}}
	transformer := pii.New(config.PIIConfig{}, noopDictionary{})
	gw := New([]Provider{p}, testConfig(t), transformer, &fakeEvents{}, &fakeUsage{})

	_, meta, err := gw.Generate(context.Background(), "", "hi", Options{}, testCapsule())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", meta.Provider)
	assert.Equal(t, "claude-sonnet", meta.Model)
}

func TestGenerate_FailsUnconfiguredWhenNeitherSourceSuppliesBoth(t *testing.T) {
	cfg := &config.Config{}
	cfg.Swap(config.NewAgentRegistry(nil), &config.GlobalModelConfig{})
	transformer := pii.New(config.PIIConfig{}, noopDictionary{})
	gw := New(nil, cfg, transformer, &fakeEvents{}, &fakeUsage{})

	_, _, err := gw.Generate(context.Background(), "", "hi", Options{}, testCapsule())
	require.Error(t, err)
	assert.Equal(t, errs.Unconfigured, errs.KindOf(err))
}

func TestGenerate_RetriesUpstreamFailureThenSucceeds(t *testing.T) {
	p := &fakeProvider{
		name: "anthropic",
		errs: []error{errs.New(errs.UpstreamFailure, "rate limited"), nil},
		responses: []Response{
			{}, // unused, first call errors
			{Content: "recovered"},
		},
	}
	transformer := pii.New(config.PIIConfig{}, noopDictionary{})
	gw := New([]Provider{p}, testConfig(t), transformer, &fakeEvents{}, &fakeUsage{})

	content, _, err := gw.Generate(context.Background(), "", "hi", Options{Provider: "anthropic", Model: "claude-sonnet"}, testCapsule())
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, int32(2), p.calls)
}

func TestGenerate_TerminalErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{name: "anthropic", errs: []error{errs.New(errs.BadRequest, "bad request")}}
	transformer := pii.New(config.PIIConfig{}, noopDictionary{})
	gw := New([]Provider{p}, testConfig(t), transformer, &fakeEvents{}, &fakeUsage{})

	_, _, err := gw.Generate(context.Background(), "", "hi", Options{Provider: "anthropic", Model: "claude-sonnet"}, testCapsule())
	require.Error(t, err)
	assert.Equal(t, int32(1), p.calls)
}

func TestGenerate_PseudonymizesPromptBeforeProviderSeesIt(t *testing.T) {
	var seenUserPrompt string
	p := &recordingProvider{fn: func(req Request) (Response, error) {
		seenUserPrompt = req.UserPrompt
		return Response{Content: "ack"}, nil
	}}
	cfg := config.PIIConfig{Patterns: []config.PIIPatternConfig{
		{Name: "email", Pattern: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`},
	}}
	transformer := pii.New(cfg, noopDictionary{})
	gw := New([]Provider{p}, testConfig(t), transformer, &fakeEvents{}, &fakeUsage{})

	content, _, err := gw.Generate(context.Background(), "", "email me at alice@example.com", Options{Provider: "anthropic", Model: "claude-sonnet"}, testCapsule())
	require.NoError(t, err)
	assert.NotContains(t, seenUserPrompt, "alice@example.com")
	assert.Equal(t, "ack", content)
}

type recordingProvider struct {
	fn func(req Request) (Response, error)
}

func (r *recordingProvider) Name() string { return "anthropic" }
func (r *recordingProvider) Complete(ctx context.Context, req Request) (Response, error) {
	return r.fn(req)
}
