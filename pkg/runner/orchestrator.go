package runner

import (
	"context"
	"encoding/json"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// AgentInvoker is the subset of the Dispatcher (C7) the orchestrator runner
// delegates to. Declared here, implemented by pkg/dispatch, so this package
// doesn't need to know about schema validation or worker pools.
type AgentInvoker interface {
	Invoke(ctx context.Context, orgSlug, agentSlug string, req Request, cap capsule.Capsule) (Response, capsule.Capsule, error)
}

// OrchestratorController delegates to one or more other agents by slug and
// aggregates their responses (spec.md §4.6). Each delegate runs against the
// same org and capsule identity as the orchestrating call, with a fresh
// task/plan/deliverable assignment per delegate (the orchestrator never
// forwards its own TaskID onward).
type OrchestratorController struct {
	invoker AgentInvoker
}

func NewOrchestratorController(invoker AgentInvoker) *OrchestratorController {
	return &OrchestratorController{invoker: invoker}
}

func (c *OrchestratorController) Type() config.RunnerType { return config.RunnerOrchestrator }

// delegateResult is one delegated agent's outcome, aggregated into the
// orchestrator's own Output.Content as a JSON array.
type delegateResult struct {
	AgentSlug string         `json:"agentSlug"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (c *OrchestratorController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	rawSlugs, _ := req.Payload["agents"].([]any)
	if len(rawSlugs) == 0 {
		return Output{}, errs.New(errs.BadRequest, "orchestrator runner requires a non-empty payload.agents")
	}

	delegatePayload, _ := req.Payload["input"].(map[string]any)
	delegateReq := Request{Mode: req.Mode, Action: req.Action, Payload: delegatePayload}

	results := make([]delegateResult, 0, len(rawSlugs))
	for _, raw := range rawSlugs {
		slug, ok := raw.(string)
		if !ok || slug == "" {
			continue
		}
		delegateCap := cap
		delegateCap.AgentSlug = slug
		delegateCap.TaskID = capsule.NIL
		delegateCap.PlanID = capsule.NIL
		delegateCap.DeliverableID = capsule.NIL

		resp, _, err := c.invoker.Invoke(ctx, cap.OrgSlug, slug, delegateReq, delegateCap)
		if err != nil {
			results = append(results, delegateResult{AgentSlug: slug, Error: err.Error()})
			continue
		}
		results = append(results, delegateResult{AgentSlug: slug, Payload: resp.Payload})
	}

	content, err := json.Marshal(results)
	if err != nil {
		return Output{}, errs.Wrap(errs.Internal, "failed to encode orchestrator results", err)
	}
	return Output{Content: content, Extra: map[string]any{"delegateCount": len(results)}}, nil
}
