package store

import (
	"context"

	"github.com/google/uuid"
)

// AppendUsageRecord appends an immutable UsageRecord (spec.md §4.4 step 6
// and the external POST /llm/usage surface). Usage records are never
// updated or deleted by this package.
func (s *Store) AppendUsageRecord(ctx context.Context, r UsageRecord) (UsageRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, org_slug, user_id, conversation_id, agent_slug, provider, model,
			caller_type, caller_name, prompt_tokens, completion_tokens,
			cached_input_tokens, thinking_tokens, cost_cents, latency_ms, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, r.ID, r.OrgSlug, r.UserID, r.ConversationID, r.AgentSlug, r.Provider, r.Model,
		r.CallerType, r.CallerName, r.PromptTokens, r.CompletionTokens,
		r.CachedInputTokens, r.ThinkingTokens, r.CostCents, r.LatencyMS, r.Status)
	if err != nil {
		return UsageRecord{}, mapErr(err)
	}
	return r, nil
}
