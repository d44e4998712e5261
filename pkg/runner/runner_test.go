package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

type fakeController struct {
	runnerType config.RunnerType
	out        Output
	err        error
}

func (c *fakeController) Type() config.RunnerType { return c.runnerType }

func (c *fakeController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	return c.out, c.err
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

func (f *fakeEvents) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type fakeTaskStore struct {
	mu           sync.Mutex
	started      []string
	completed    []string
	failed       []string
	cancelled    []string
	plans        map[string]int
	deliverables map[string]int
	nextPlanID   int
	nextDelivID  int
	failErr      error

	lastDeliverableType string
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{plans: map[string]int{}, deliverables: map[string]int{}}
}

func (f *fakeTaskStore) EnsureConversation(ctx context.Context, id, orgSlug, userID, agentSlug string) error {
	return nil
}

func (f *fakeTaskStore) EnsureTask(ctx context.Context, id, conversationID, orgSlug, userID, agentSlug string) error {
	return nil
}

func (f *fakeTaskStore) StartTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeTaskStore) CompleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeTaskStore) FailTask(ctx context.Context, id string, kind errs.Kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return f.failErr
}

func (f *fakeTaskStore) CancelTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeTaskStore) CreatePlan(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (PlanRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPlanID++
	id := "plan-1"
	f.plans[id] = 1
	return PlanRef{ID: id, VersionNumber: 1}, nil
}

func (f *fakeTaskStore) EditPlan(ctx context.Context, planID string, content, promptInputs []byte) (PlanRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[planID]++
	return PlanRef{ID: planID, VersionNumber: f.plans[planID]}, nil
}

func (f *fakeTaskStore) CreateDeliverable(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (DeliverableRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDelivID++
	f.lastDeliverableType = deliverableType
	id := "deliverable-1"
	f.deliverables[id] = 1
	return DeliverableRef{ID: id, VersionNumber: 1}, nil
}

func (f *fakeTaskStore) EditDeliverable(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliverables[deliverableID]++
	return DeliverableRef{ID: deliverableID, VersionNumber: f.deliverables[deliverableID]}, nil
}

func testCapsule() capsule.Capsule {
	return capsule.Capsule{
		OrgSlug: "acme", UserID: "user-1", ConversationID: "conv-1", AgentSlug: "planner",
		AgentType: "context", Provider: "anthropic", Model: "claude-sonnet",
		TaskID: "task-1", PlanID: capsule.NIL, DeliverableID: capsule.NIL,
	}
}

func testAgent(runnerType config.RunnerType) config.AgentConfig {
	return config.AgentConfig{Slug: "planner", RunnerType: runnerType}
}

func newTestRunner(c Controller, store TaskStore, events EventEmitter) *BaseRunner {
	reg := NewRegistry()
	reg.Register(c.Type(), c)
	return NewBaseRunner(reg, store, events)
}

func TestExecute_UnregisteredRunnerTypeFailsWithoutStartingTask(t *testing.T) {
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := NewBaseRunner(NewRegistry(), store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeConverse}, testCapsule())

	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Empty(t, store.started)
}

func TestExecute_ConverseDoesNotPersistAnArtifact(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("hello")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	resp, nextCap, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeConverse}, testCapsule())

	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Payload["content"])
	assert.Equal(t, capsule.NIL, nextCap.PlanID)
	assert.Equal(t, capsule.NIL, nextCap.DeliverableID)
	assert.Contains(t, store.completed, "task-1")
	assert.Equal(t, []string{"task.started", "task.completed"}, events.seen())
}

func TestExecute_PlanModeCreatesOnFirstCallThenEditsOnSecond(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("draft")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	cap := testCapsule()
	resp, nextCap, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModePlan}, cap)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", nextCap.PlanID)
	assert.Equal(t, 1, resp.Payload["versionNumber"])

	resp2, nextCap2, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModePlan}, nextCap)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", nextCap2.PlanID)
	assert.Equal(t, 2, resp2.Payload["versionNumber"])
}

func TestExecute_BuildWithoutPlanFailsConflict(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("x")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeBuild}, testCapsule())

	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
	assert.Contains(t, store.failed, "task-1")
}

func TestExecute_BuildWithPlanCreatesDeliverableUsingAgentSlugByDefault(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("built")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	cap := testCapsule()
	cap.PlanID = "plan-1"
	resp, nextCap, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeBuild}, cap)

	require.NoError(t, err)
	assert.Equal(t, "deliverable-1", nextCap.DeliverableID)
	assert.Equal(t, 1, resp.Payload["versionNumber"])
	assert.Equal(t, "planner", store.lastDeliverableType)
}

func TestExecute_BuildHonorsControllerSuppliedDeliverableType(t *testing.T) {
	controller := &fakeController{
		runnerType: config.RunnerMedia,
		out:        Output{Content: []byte("https://example.com/img.png"), Extra: map[string]any{"deliverableType": "media-ref"}},
	}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	cap := testCapsule()
	cap.PlanID = "plan-1"
	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerMedia), Request{Mode: ModeBuild}, cap)

	require.NoError(t, err)
	assert.Equal(t, "media-ref", store.lastDeliverableType)
}

func TestExecute_HitlEmitsCheckpointEvent(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("needs review")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeHitl}, testCapsule())

	require.NoError(t, err)
	assert.Contains(t, events.seen(), "hitl.checkpoint")
}

func TestExecute_ControllerErrorFailsTaskAndEmitsTaskFailed(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, err: errs.New(errs.UpstreamFailure, "boom")}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeConverse}, testCapsule())

	require.Error(t, err)
	assert.Contains(t, store.failed, "task-1")
	assert.Contains(t, events.seen(), "task.failed")
}

func TestExecute_CancelledControllerErrorCancelsTaskInsteadOfFailing(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, err: errs.New(errs.Cancelled, "client hung up")}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: ModeConverse}, testCapsule())

	require.Error(t, err)
	assert.Contains(t, store.cancelled, "task-1")
	assert.Empty(t, store.failed)
}

func TestExecute_UnsupportedModeIsBadRequest(t *testing.T) {
	controller := &fakeController{runnerType: config.RunnerContext, out: Output{Content: []byte("x")}}
	store := newFakeTaskStore()
	events := &fakeEvents{}
	runner := newTestRunner(controller, store, events)

	_, _, err := runner.Execute(context.Background(), testAgent(config.RunnerContext), Request{Mode: Mode("bogus")}, testCapsule())

	require.Error(t, err)
	assert.Equal(t, errs.BadRequest, errs.KindOf(err))
}
