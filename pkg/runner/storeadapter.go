package runner

import (
	"context"

	"github.com/agentgov/pipeline/pkg/errs"
)

// StoreAdapter adapts a *pkg/store.Store-shaped artifact store into
// TaskStore, narrowing store.Plan/store.Deliverable down to the
// PlanRef/DeliverableRef fields BaseRunner actually consults. cmd/govpipe
// constructs this at wiring time.
type StoreAdapter struct {
	StartTaskFunc    func(ctx context.Context, id string) error
	CompleteTaskFunc func(ctx context.Context, id string) error
	FailTaskFunc     func(ctx context.Context, id, kind, message string) error
	CancelTaskFunc   func(ctx context.Context, id string) error

	CreatePlanFunc func(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (PlanRef, error)
	EditPlanFunc   func(ctx context.Context, planID string, content, promptInputs []byte) (PlanRef, error)

	CreateDeliverableFunc func(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (DeliverableRef, error)
	EditDeliverableFunc   func(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableRef, error)
}

func (a StoreAdapter) StartTask(ctx context.Context, id string) error    { return a.StartTaskFunc(ctx, id) }
func (a StoreAdapter) CompleteTask(ctx context.Context, id string) error { return a.CompleteTaskFunc(ctx, id) }
func (a StoreAdapter) CancelTask(ctx context.Context, id string) error   { return a.CancelTaskFunc(ctx, id) }

func (a StoreAdapter) FailTask(ctx context.Context, id string, kind errs.Kind, message string) error {
	return a.FailTaskFunc(ctx, id, string(kind), message)
}

func (a StoreAdapter) CreatePlan(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (PlanRef, error) {
	return a.CreatePlanFunc(ctx, conversationID, orgSlug, userID, agentSlug, content, promptInputs)
}

func (a StoreAdapter) EditPlan(ctx context.Context, planID string, content, promptInputs []byte) (PlanRef, error) {
	return a.EditPlanFunc(ctx, planID, content, promptInputs)
}

func (a StoreAdapter) CreateDeliverable(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (DeliverableRef, error) {
	return a.CreateDeliverableFunc(ctx, conversationID, orgSlug, userID, agentSlug, deliverableType, content, promptInputs)
}

func (a StoreAdapter) EditDeliverable(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableRef, error) {
	return a.EditDeliverableFunc(ctx, deliverableID, content, promptInputs)
}
