// Package runner implements the Runner Registry & Base Runner (spec.md
// §4.6): a Registry of per-type Controllers, and a BaseRunner that
// dispatches a request's mode to one of four handlers, applies each
// mode's artifact-persistence semantics, and drives the task state
// machine, emitting every transition to the Observability Bus.
//
// Grounded on pkg/agent/factory.go (AgentFactory → ControllerFactory →
// Controller) and pkg/agent/base_agent.go (BaseAgent delegating to
// Controller.Run, mapping context cancellation to a terminal status).
package runner

import (
	"context"
	"encoding/json"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// Mode is the request mode from spec.md §4.6.
type Mode string

const (
	ModeConverse Mode = "converse"
	ModePlan     Mode = "plan"
	ModeBuild    Mode = "build"
	ModeHitl     Mode = "hitl"
)

// Request is one call into a runner via BaseRunner.Execute.
type Request struct {
	Mode    Mode
	Action  string
	Payload map[string]any
}

// Response is the runner's result, merged into the dispatcher's response
// envelope alongside the (possibly newly populated) capsule.
type Response struct {
	Payload map[string]any
}

// EventEmitter is the subset of the Observability Bus BaseRunner pushes
// task state-machine transitions to. Declared here, implemented by
// *pkg/obsbus.Bus, mirroring the identical interface llmgateway declares
// for the same reason: each consumer names only the method shape it uses.
type EventEmitter interface {
	Emit(ctx context.Context, cap capsule.Capsule, eventType string, payload map[string]any)
}

// TaskStore is the subset of the Artifact Store BaseRunner needs to drive
// the task state machine (spec.md §4.6) and persist plan/deliverable
// artifacts for the plan/build modes. Ensuring the Task/Conversation rows
// exist in the first place is the Dispatcher's job (spec.md §4.7 step 5),
// not BaseRunner's — by the time Execute is called, cap.TaskID already
// names a row.
type TaskStore interface {
	StartTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id string, kind errs.Kind, message string) error
	CancelTask(ctx context.Context, id string) error

	CreatePlan(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (PlanRef, error)
	EditPlan(ctx context.Context, planID string, content, promptInputs []byte) (PlanRef, error)

	CreateDeliverable(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (DeliverableRef, error)
	EditDeliverable(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableRef, error)
}

// PlanRef and DeliverableRef are the bits of store.Plan/store.Deliverable
// BaseRunner cares about, decoupled from the full persisted row shape so
// this package can be unit tested with a fake TaskStore.
type PlanRef struct {
	ID            string
	VersionNumber int
}

type DeliverableRef struct {
	ID            string
	VersionNumber int
}

// Controller is the per-runner-type strategy (mirrors pkg/agent's
// Controller interface). Each of the six runner types in spec.md §4.6
// implements this once; BaseRunner's four mode handlers all route through
// the same Run call; only the persistence wrapped around it differs.
type Controller interface {
	Type() config.RunnerType
	Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error)
}

// Output is a Controller's result content plus any extra structured
// fields the caller should see in the response payload.
type Output struct {
	Content []byte
	Extra   map[string]any
}

// Registry resolves a runner type to its Controller (spec.md §4.6:
// register/resolve).
type Registry struct {
	byType map[config.RunnerType]Controller
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[config.RunnerType]Controller)}
}

// Register adds or replaces the controller for runnerType.
func (r *Registry) Register(runnerType config.RunnerType, c Controller) {
	r.byType[runnerType] = c
}

// Resolve returns the controller registered for runnerType, or
// errs.NotFound if none is registered.
func (r *Registry) Resolve(runnerType config.RunnerType) (Controller, error) {
	c, ok := r.byType[runnerType]
	if !ok {
		return nil, errs.New(errs.NotFound, "no runner registered for type "+string(runnerType))
	}
	return c, nil
}

// BaseRunner dispatches a Request's mode to the matching handler, wraps
// the Controller call with the task state machine, and persists
// plan/deliverable artifacts for the modes that produce them.
type BaseRunner struct {
	registry *Registry
	store    TaskStore
	events   EventEmitter
}

// NewBaseRunner builds a BaseRunner over registry, store and events.
func NewBaseRunner(registry *Registry, store TaskStore, events EventEmitter) *BaseRunner {
	return &BaseRunner{registry: registry, store: store, events: events}
}

// Execute runs spec.md §4.7 step 6 ("invoke the runner's execute"): it
// resolves the controller for agent.RunnerType, transitions the task
// pending→running, dispatches to the mode-specific handler, and
// transitions to succeeded/failed/cancelled, emitting every transition.
func (b *BaseRunner) Execute(ctx context.Context, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	controller, err := b.registry.Resolve(agent.RunnerType)
	if err != nil {
		return Response{}, cap, err
	}

	if err := b.store.StartTask(ctx, cap.TaskID); err != nil {
		return Response{}, cap, err
	}
	b.events.Emit(ctx, cap, "task.started", map[string]any{"mode": string(req.Mode), "runnerType": string(agent.RunnerType)})

	resp, nextCap, err := b.dispatch(ctx, controller, agent, req, cap)
	if err != nil {
		b.failTask(ctx, cap, err)
		return Response{}, cap, err
	}

	if completeErr := b.store.CompleteTask(ctx, cap.TaskID); completeErr != nil {
		b.failTask(ctx, cap, completeErr)
		return Response{}, cap, completeErr
	}
	b.events.Emit(ctx, nextCap, "task.completed", map[string]any{"mode": string(req.Mode)})

	return resp, nextCap, nil
}

func (b *BaseRunner) failTask(ctx context.Context, cap capsule.Capsule, err error) {
	kind := errs.KindOf(err)
	if kind == errs.Cancelled {
		_ = b.store.CancelTask(ctx, cap.TaskID)
		b.events.Emit(ctx, cap, "task.failed", map[string]any{"reason": "cancelled"})
		return
	}
	_ = b.store.FailTask(ctx, cap.TaskID, kind, err.Error())
	b.events.Emit(ctx, cap, "task.failed", map[string]any{"errorKind": string(kind), "error": err.Error()})
}

// dispatch routes req.Mode to its handler; an unrecognized mode is
// spec.md §4.6's ErrUnsupportedMode.
func (b *BaseRunner) dispatch(ctx context.Context, c Controller, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	switch req.Mode {
	case ModeConverse:
		return b.handleConverse(ctx, c, agent, req, cap)
	case ModePlan:
		return b.handlePlan(ctx, c, agent, req, cap)
	case ModeBuild:
		return b.handleBuild(ctx, c, agent, req, cap)
	case ModeHitl:
		return b.handleHitl(ctx, c, agent, req, cap)
	default:
		return Response{}, cap, errs.New(errs.BadRequest, "unsupported mode "+string(req.Mode))
	}
}

// handleConverse runs the controller and returns its output directly; no
// artifact is persisted (spec.md: converse is the ephemeral chat mode).
func (b *BaseRunner) handleConverse(ctx context.Context, c Controller, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	out, err := c.Run(ctx, agent, cap, req)
	if err != nil {
		return Response{}, cap, err
	}
	return toResponse(out), cap, nil
}

// handlePlan runs the controller and persists the result as a Plan
// version: a fresh Plan if cap.PlanID is NIL, otherwise a new version of
// the existing one (spec.md §4.2 edit semantics).
func (b *BaseRunner) handlePlan(ctx context.Context, c Controller, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	out, err := c.Run(ctx, agent, cap, req)
	if err != nil {
		return Response{}, cap, err
	}

	promptInputs := encodePayload(req.Payload)

	if cap.PlanID == capsule.NIL {
		ref, err := b.store.CreatePlan(ctx, cap.ConversationID, cap.OrgSlug, cap.UserID, cap.AgentSlug, out.Content, promptInputs)
		if err != nil {
			return Response{}, cap, err
		}
		nextCap, err := cap.TryAssignPlanID(ref.ID)
		if err != nil {
			return Response{}, cap, err
		}
		return toResponseWithVersion(out, ref.VersionNumber), nextCap, nil
	}

	ref, err := b.store.EditPlan(ctx, cap.PlanID, out.Content, promptInputs)
	if err != nil {
		return Response{}, cap, err
	}
	return toResponseWithVersion(out, ref.VersionNumber), cap, nil
}

// handleBuild enforces the Plan→Build coupling rule (SPEC_FULL.md §8:
// "inside build runner only") — a build cannot happen without an
// already-assigned plan — then persists the result as a Deliverable
// version, new or edited by the same cap.DeliverableID rule as handlePlan.
func (b *BaseRunner) handleBuild(ctx context.Context, c Controller, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	if cap.PlanID == capsule.NIL {
		return Response{}, cap, errs.New(errs.Conflict, "build requires an existing plan")
	}

	out, err := c.Run(ctx, agent, cap, req)
	if err != nil {
		return Response{}, cap, err
	}

	promptInputs := encodePayload(req.Payload)
	deliverableType := agent.Slug
	if t, ok := out.Extra["deliverableType"].(string); ok && t != "" {
		deliverableType = t
	}

	if cap.DeliverableID == capsule.NIL {
		ref, err := b.store.CreateDeliverable(ctx, cap.ConversationID, cap.OrgSlug, cap.UserID, cap.AgentSlug, deliverableType, out.Content, promptInputs)
		if err != nil {
			return Response{}, cap, err
		}
		nextCap, err := cap.TryAssignDeliverableID(ref.ID)
		if err != nil {
			return Response{}, cap, err
		}
		return toResponseWithVersion(out, ref.VersionNumber), nextCap, nil
	}

	ref, err := b.store.EditDeliverable(ctx, cap.DeliverableID, out.Content, promptInputs)
	if err != nil {
		return Response{}, cap, err
	}
	return toResponseWithVersion(out, ref.VersionNumber), cap, nil
}

// handleHitl runs the controller and emits a checkpoint event carrying its
// output for a human reviewer; no dedicated HITL persistence exists in
// spec.md beyond the mode itself, so the checkpoint is observability-only.
func (b *BaseRunner) handleHitl(ctx context.Context, c Controller, agent config.AgentConfig, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error) {
	out, err := c.Run(ctx, agent, cap, req)
	if err != nil {
		return Response{}, cap, err
	}
	b.events.Emit(ctx, cap, "hitl.checkpoint", map[string]any{"content": string(out.Content)})
	return toResponse(out), cap, nil
}

func toResponse(out Output) Response {
	payload := map[string]any{"content": string(out.Content)}
	for k, v := range out.Extra {
		payload[k] = v
	}
	return Response{Payload: payload}
}

func toResponseWithVersion(out Output, versionNumber int) Response {
	resp := toResponse(out)
	resp.Payload["versionNumber"] = versionNumber
	return resp
}

func encodePayload(payload map[string]any) []byte {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return encoded
}
