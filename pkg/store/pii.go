package store

import "context"

// PIIDictionaryEntry is one org/agent-scoped term→pseudonym mapping
// (spec.md's PiiDictionary entity).
type PIIDictionaryEntry struct {
	OrgSlug   string
	AgentSlug string // empty means org-wide
	Term      string
	Pseudonym string
}

// LoadPIIDictionary returns every dictionary entry visible to
// (orgSlug, agentSlug): the org-wide entries plus any agent-specific ones.
// When nothing is configured it returns no entries and a nil error —
// distinct from a query failure, which returns an error that callers
// degrade on (spec.md §4.3: DictionaryLoadFailure → pattern-only).
func (s *Store) LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]PIIDictionaryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT org_slug, coalesce(agent_slug, ''), term, pseudonym
		FROM pii_dictionary_entries
		WHERE org_slug = $1 AND (agent_slug IS NULL OR agent_slug = $2)
	`, orgSlug, agentSlug)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []PIIDictionaryEntry
	for rows.Next() {
		var e PIIDictionaryEntry
		if err := rows.Scan(&e.OrgSlug, &e.AgentSlug, &e.Term, &e.Pseudonym); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

// UpsertPIIDictionaryEntry adds or updates one term→pseudonym mapping.
func (s *Store) UpsertPIIDictionaryEntry(ctx context.Context, e PIIDictionaryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pii_dictionary_entries (org_slug, agent_slug, term, pseudonym)
		VALUES ($1, nullif($2, ''), $3, $4)
		ON CONFLICT (org_slug, coalesce(agent_slug, ''), term)
		DO UPDATE SET pseudonym = excluded.pseudonym
	`, e.OrgSlug, e.AgentSlug, e.Term, e.Pseudonym)
	return mapErr(err)
}
