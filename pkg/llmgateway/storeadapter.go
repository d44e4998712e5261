package llmgateway

import "context"

// StoreAdapter adapts a *pkg/store.Store-shaped usage sink (whose
// AppendUsageRecord returns a populated store.UsageRecord) into a
// UsageRecorder. cmd/govpipe constructs this at wiring time, the one
// place that knows both UsageRecordInput and store.UsageRecord share a
// field layout.
type StoreAdapter struct {
	Append func(ctx context.Context, r UsageRecordInput) error
}

// AppendUsageRecord implements UsageRecorder by delegating to Append.
func (a StoreAdapter) AppendUsageRecord(ctx context.Context, r UsageRecordInput) error {
	return a.Append(ctx, r)
}
