package store

import (
	"context"

	"github.com/agentgov/pipeline/pkg/errs"
)

// EnsureTask creates the task row in TaskPending if it doesn't already
// exist, and is a no-op otherwise (spec.md §4.7 step 5).
func (s *Store) EnsureTask(ctx context.Context, id, conversationID, orgSlug, userID, agentSlug string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, conversation_id, org_slug, user_id, agent_slug, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, id, conversationID, orgSlug, userID, agentSlug, TaskPending)
	return mapErr(err)
}

// GetTask reads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	return s.scanTask(ctx, `
		SELECT id, conversation_id, org_slug, user_id, agent_slug, status,
		       coalesce(error_kind, ''), coalesce(error_message, ''), version, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
}

func (s *Store) scanTask(ctx context.Context, query string, args ...any) (Task, error) {
	var t Task
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.ConversationID, &t.OrgSlug, &t.UserID, &t.AgentSlug, &t.Status,
		&t.ErrorKind, &t.ErrorMessage, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Task{}, mapErr(err)
	}
	return t, nil
}

// StartTask transitions a task from pending to running. It is idempotent:
// calling it again while already running succeeds without bumping the
// version twice.
func (s *Store) StartTask(ctx context.Context, id string) error {
	return s.transition(ctx, id, TaskRunning, "", "")
}

// CompleteTask transitions a task to succeeded. Fails with errs.Conflict if
// the task is already in a different terminal state (terminal states are
// write-once, spec.md §4.6).
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	return s.transition(ctx, id, TaskSucceeded, "", "")
}

// FailTask transitions a task to failed, recording the stable error kind
// and message.
func (s *Store) FailTask(ctx context.Context, id string, errKind errs.Kind, message string) error {
	return s.transition(ctx, id, TaskFailed, string(errKind), message)
}

// CancelTask transitions a task to cancelled.
func (s *Store) CancelTask(ctx context.Context, id string) error {
	return s.transition(ctx, id, TaskCancelled, string(errs.Cancelled), "cancelled")
}

func (s *Store) transition(ctx context.Context, id string, next TaskStatus, errKind, errMessage string) error {
	return withOptimisticRetry(ctx, func(ctx context.Context) (bool, error) {
		current, err := s.GetTask(ctx, id)
		if err != nil {
			return false, err
		}
		if current.Status == next {
			return true, nil
		}
		if current.Status.IsTerminal() {
			return false, errs.New(errs.Conflict, "task is already in a terminal state")
		}

		tag, err := s.pool.Exec(ctx, `
			UPDATE tasks
			SET status = $1, error_kind = nullif($2, ''), error_message = nullif($3, ''),
			    version = version + 1, updated_at = now()
			WHERE id = $4 AND version = $5
		`, next, errKind, errMessage, id, current.Version)
		if err != nil {
			return false, mapErr(err)
		}
		return tag.RowsAffected() == 1, nil
	})
}
