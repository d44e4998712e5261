package api

import (
	"context"

	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/store"
)

// UsageStore is the subset of the Artifact Store POST /llm/usage appends
// to. *pkg/store.Store satisfies this directly — AppendUsageRecord's
// signature was written to this shape, so no adapter is needed at wiring
// time, unlike pkg/llmgateway.StoreAdapter which bridges a narrower
// UsageRecordInput.
type UsageStore interface {
	AppendUsageRecord(ctx context.Context, r store.UsageRecord) (store.UsageRecord, error)
}

// WebhookTaskStore is the subset of the Artifact Store POST /webhooks/status
// transitions through. *pkg/store.Store satisfies this directly.
type WebhookTaskStore interface {
	CompleteTask(ctx context.Context, id string) error
	FailTask(ctx context.Context, id string, kind errs.Kind, message string) error
	CancelTask(ctx context.Context, id string) error
}
