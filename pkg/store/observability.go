package store

import (
	"context"
	"time"

	"github.com/agentgov/pipeline/pkg/errs"
)

// AppendEvent writes one ObservabilityEventRow to the durable sink. Called
// by the Observability Bus for every pushed event; failures here are
// logged by the caller, never allowed to block event delivery (spec.md
// §4.5: "durable sink appends every event, failures logged not blocking").
func (s *Store) AppendEvent(ctx context.Context, e ObservabilityEventRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO observability_events (
			org_slug, user_id, conversation_id, agent_slug, task_id, source_app,
			event_type, status, message, progress, step, payload
		) VALUES ($1,$2,$3,$4,nullif($5,''),$6,$7,nullif($8,''),nullif($9,''),$10,nullif($11,''),$12)
	`, e.OrgSlug, e.UserID, e.ConversationID, e.AgentSlug, e.TaskID, e.SourceApp,
		e.EventType, e.Status, e.Message, e.Progress, e.Step, e.Payload)
	return mapErr(err)
}

// HistoryFilter narrows a History query, mirroring the GET
// /observability/history query parameters (spec.md §6).
type HistoryFilter struct {
	Since time.Time
	Until time.Time // zero means "no upper bound"
	Limit int
}

// History reads durable sink rows between Since and Until (spec.md §4.5),
// newest last, capped at Limit (and at the process-wide HistoryMaxLimit,
// enforced by the caller before this is invoked).
func (s *Store) History(ctx context.Context, orgSlug string, filter HistoryFilter) ([]ObservabilityEventRow, error) {
	if filter.Limit <= 0 {
		return nil, errs.New(errs.BadRequest, "limit must be positive")
	}

	until := filter.Until
	if until.IsZero() {
		until = time.Now()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, org_slug, user_id, conversation_id, agent_slug, coalesce(task_id, ''),
		       source_app, event_type, coalesce(status, ''), coalesce(message, ''),
		       progress, coalesce(step, ''), payload, created_at
		FROM observability_events
		WHERE org_slug = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
		LIMIT $4
	`, orgSlug, filter.Since, until, filter.Limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []ObservabilityEventRow
	for rows.Next() {
		var e ObservabilityEventRow
		if err := rows.Scan(&e.ID, &e.OrgSlug, &e.UserID, &e.ConversationID, &e.AgentSlug, &e.TaskID,
			&e.SourceApp, &e.EventType, &e.Status, &e.Message, &e.Progress, &e.Step, &e.Payload, &e.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}
