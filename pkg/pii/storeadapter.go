package pii

import "context"

// StoreAdapter adapts a *pkg/store.Store-shaped dictionary source (whose
// LoadPIIDictionary returns store.PIIDictionaryEntry) into a
// DictionaryLoader. cmd/govpipe constructs this at wiring time; it is the
// one place in the repo that knows both pii.DictionaryEntry and
// store.PIIDictionaryEntry share a field layout.
type StoreAdapter struct {
	Load func(ctx context.Context, orgSlug, agentSlug string) ([]DictionaryEntry, error)
}

// LoadPIIDictionary implements DictionaryLoader by delegating to Load.
func (a StoreAdapter) LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]DictionaryEntry, error) {
	return a.Load(ctx, orgSlug, agentSlug)
}
