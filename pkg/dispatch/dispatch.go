// Package dispatch implements the Dispatcher (spec.md §4.7): the single
// dispatch(authenticatedUserId, orgSlug, agentSlug, request) -> response
// operation every inbound surface funnels through. It owns request
// validation, capsule acceptance, agent lookup, task/conversation
// provisioning, and the dispatch-level timeout; the task state machine
// itself (start/complete/fail, emitting to the Observability Bus) is
// pkg/runner.BaseRunner's job, invoked as this package's step 6.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/obsmetrics"
	"github.com/agentgov/pipeline/pkg/runner"
)

// ConversationStore is the subset of the Artifact Store the Dispatcher
// needs to provision a Task/Conversation row before invoking a runner
// (spec.md §4.7 step 5). *pkg/store.Store satisfies this directly — its
// EnsureConversation/EnsureTask signatures were written to this shape, so
// no adapter is needed at wiring time.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, id, orgSlug, userID, agentSlug string) error
	EnsureTask(ctx context.Context, id, conversationID, orgSlug, userID, agentSlug string) error
}

// Request is one inbound call to Dispatch, before capsule acceptance.
type Request struct {
	Capsule capsule.Raw
	Mode    runner.Mode
	Action  string
	Payload map[string]any
}

// Response is spec.md §4.7 step 8's envelope: the result always echoes the
// (possibly newly populated) capsule, win or lose, so the caller can thread
// task/plan/deliverable ids through its next call without re-deriving them.
type Response struct {
	Success bool
	Payload map[string]any
	Capsule capsule.Raw
}

// Dispatcher is the single entry point described above. It implements
// runner.AgentInvoker so the orchestrator runner can recurse back through
// it for delegate agent calls without pkg/runner importing this package.
type Dispatcher struct {
	cfg     *config.Config
	store   ConversationStore
	runner  *runner.BaseRunner
	schemas *schemaCache
	metrics *obsmetrics.Metrics
}

// SetMetrics wires the ambient Prometheus collectors into the
// Dispatcher. A nil *obsmetrics.Metrics (the default) makes every
// recording call a no-op, so this is optional to call.
func (d *Dispatcher) SetMetrics(m *obsmetrics.Metrics) { d.metrics = m }

// New builds a Dispatcher over cfg (for agent lookup and the dispatch
// timeout), store (task/conversation provisioning), and runner (the task
// state machine and mode dispatch).
func New(cfg *config.Config, store ConversationStore, r *runner.BaseRunner) *Dispatcher {
	return &Dispatcher{cfg: cfg, store: store, runner: r, schemas: newSchemaCache()}
}

// Dispatch runs spec.md §4.7's eight steps for one inbound request.
func (d *Dispatcher) Dispatch(ctx context.Context, authenticatedUserID string, req Request) (resp Response, err error) {
	start := time.Now()
	agentSlug := "unknown"
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		d.metrics.RecordDispatch(agentSlug, string(req.Mode), status, time.Since(start))
	}()

	if err = validateRequestShape(req); err != nil {
		return Response{}, err
	}

	cap, err := capsule.Accept(req.Capsule, authenticatedUserID)
	if err != nil {
		return Response{}, err
	}
	agentSlug = cap.AgentSlug

	agent, ok := d.cfg.Agents().Lookup(cap.OrgSlug, cap.AgentSlug)
	if !ok {
		err = errs.New(errs.NotFound, "no agent "+cap.AgentSlug+" registered for org "+cap.OrgSlug)
		return Response{Capsule: cap.Raw()}, err
	}

	if err = d.schemas.validate(agent, string(req.Mode), req.Action, req.Payload); err != nil {
		return Response{Capsule: cap.Raw()}, err
	}

	cap, err = d.ensureTask(ctx, cap)
	if err != nil {
		return Response{Capsule: cap.Raw()}, err
	}

	runCtx, cancel := d.withDispatchTimeout(ctx, agent)
	defer cancel()

	execResp, nextCap, err := d.runner.Execute(runCtx, agent, runner.Request{Mode: req.Mode, Action: req.Action, Payload: req.Payload}, cap)
	if err != nil {
		return Response{Capsule: nextCap.Raw()}, err
	}

	return Response{Success: true, Payload: execResp.Payload, Capsule: nextCap.Raw()}, nil
}

// Invoke implements runner.AgentInvoker for the orchestrator runner. It
// runs the same agent-lookup, schema-validation, and task-provisioning
// steps as Dispatch, keyed by orgSlug/agentSlug rather than a fresh
// capsule.Raw — the caller already holds a Capsule (cap.AgentSlug was set
// to agentSlug by the caller before invoking), not wire-shaped input that
// needs re-accepting.
func (d *Dispatcher) Invoke(ctx context.Context, orgSlug, agentSlug string, req runner.Request, cap capsule.Capsule) (runner.Response, capsule.Capsule, error) {
	agent, ok := d.cfg.Agents().Lookup(orgSlug, agentSlug)
	if !ok {
		return runner.Response{}, cap, errs.New(errs.NotFound, "no agent "+agentSlug+" registered for org "+orgSlug)
	}

	if err := d.schemas.validate(agent, string(req.Mode), req.Action, req.Payload); err != nil {
		return runner.Response{}, cap, err
	}

	cap, err := d.ensureTask(ctx, cap)
	if err != nil {
		return runner.Response{}, cap, err
	}

	runCtx, cancel := d.withDispatchTimeout(ctx, agent)
	defer cancel()

	return d.runner.Execute(runCtx, agent, req, cap)
}

// ensureTask provisions the Conversation and Task rows cap's identity
// points at, assigning a freshly generated TaskID into cap if it is still
// NIL (spec.md §4.7 step 5). It is a no-op on the conversation row for
// delegate calls that reuse the orchestrating capsule's ConversationID —
// EnsureConversation is ON CONFLICT DO NOTHING.
func (d *Dispatcher) ensureTask(ctx context.Context, cap capsule.Capsule) (capsule.Capsule, error) {
	if err := d.store.EnsureConversation(ctx, cap.ConversationID, cap.OrgSlug, cap.UserID, cap.AgentSlug); err != nil {
		return cap, err
	}

	if cap.TaskID != capsule.NIL {
		return cap, nil
	}

	taskID := uuid.NewString()
	if err := d.store.EnsureTask(ctx, taskID, cap.ConversationID, cap.OrgSlug, cap.UserID, cap.AgentSlug); err != nil {
		return cap, err
	}
	return cap.TryAssignTaskID(taskID)
}

// withDispatchTimeout bounds ctx by the agent's endpoint timeout override
// if set, otherwise DispatchConfig.DispatchTimeout (T_dispatch,
// spec.md §6's DISPATCH_TIMEOUT_MS).
func (d *Dispatcher) withDispatchTimeout(ctx context.Context, agent config.AgentConfig) (context.Context, context.CancelFunc) {
	timeout := d.cfg.Dispatch.DispatchTimeout
	if agent.Endpoint != nil && agent.Endpoint.TimeoutSec > 0 {
		timeout = time.Duration(agent.Endpoint.TimeoutSec) * time.Second
	}
	if timeout <= 0 {
		timeout = config.DefaultDispatchTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func validateRequestShape(req Request) error {
	switch req.Mode {
	case runner.ModeConverse, runner.ModePlan, runner.ModeBuild, runner.ModeHitl:
	default:
		return errs.New(errs.BadRequest, "request.mode must be one of converse, plan, build, hitl")
	}
	if req.Action == "" {
		return errs.New(errs.BadRequest, "request.payload.action is required")
	}
	return nil
}
