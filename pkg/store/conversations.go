package store

import "context"

// EnsureConversation creates the conversation row if it doesn't already
// exist, and is a no-op otherwise. Called by the Dispatcher at the top of
// every dispatch (spec.md §4.7 step 5: "ensure Task+Conversation rows
// exist").
func (s *Store) EnsureConversation(ctx context.Context, id, orgSlug, userID, agentSlug string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, org_slug, user_id, agent_slug)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, id, orgSlug, userID, agentSlug)
	return mapErr(err)
}

// GetConversation reads a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_slug, user_id, agent_slug, created_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.OrgSlug, &c.UserID, &c.AgentSlug, &c.CreatedAt)
	if err != nil {
		return Conversation{}, mapErr(err)
	}
	return c, nil
}
