package obsbus

import "context"

// StoreAdapter adapts a *pkg/store.Store-shaped durable sink (whose
// AppendEvent/History operate on store.ObservabilityEventRow) into a
// DurableSink. cmd/govpipe constructs this at wiring time, the one place
// that knows both Event and store.ObservabilityEventRow share a field
// layout.
type StoreAdapter struct {
	Append func(ctx context.Context, e Event) error
	Query  func(ctx context.Context, orgSlug string, filter HistoryFilter) ([]Event, error)
}

// AppendEvent implements DurableSink by delegating to Append.
func (a StoreAdapter) AppendEvent(ctx context.Context, e Event) error {
	return a.Append(ctx, e)
}

// History implements DurableSink by delegating to Query.
func (a StoreAdapter) History(ctx context.Context, orgSlug string, filter HistoryFilter) ([]Event, error) {
	return a.Query(ctx, orgSlug, filter)
}
