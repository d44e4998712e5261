package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentgov/pipeline/pkg/errs"
)

// CreatePlan inserts a new Plan with its first version and returns both.
func (s *Store) CreatePlan(ctx context.Context, conversationID, orgSlug, userID, agentSlug string, content, promptInputs []byte) (Plan, PlanVersion, error) {
	planID := uuid.NewString()
	versionID := uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Plan{}, PlanVersion{}, mapErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO plans (id, conversation_id, org_slug, user_id, agent_slug, current_version)
		VALUES ($1, $2, $3, $4, $5, 1)
	`, planID, conversationID, orgSlug, userID, agentSlug)
	if err != nil {
		return Plan{}, PlanVersion{}, mapErr(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO plan_versions (id, plan_id, version_number, content, prompt_inputs)
		VALUES ($1, $2, 1, $3, $4)
	`, versionID, planID, content, promptInputs)
	if err != nil {
		return Plan{}, PlanVersion{}, mapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Plan{}, PlanVersion{}, mapErr(err)
	}

	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return Plan{}, PlanVersion{}, err
	}
	version, err := s.GetPlanVersion(ctx, planID, 1)
	return plan, version, err
}

// GetPlan reads the plan header row, including soft-deleted plans (callers
// that care check DeletedAt).
func (s *Store) GetPlan(ctx context.Context, planID string) (Plan, error) {
	var p Plan
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, org_slug, user_id, agent_slug, current_version, version, deleted_at, created_at, updated_at
		FROM plans WHERE id = $1
	`, planID).Scan(&p.ID, &p.ConversationID, &p.OrgSlug, &p.UserID, &p.AgentSlug, &p.CurrentVersion, &p.Version, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Plan{}, mapErr(err)
	}
	return p, nil
}

// GetPlanVersion reads a specific non-deleted version of planID. Pass 0 for
// versionNumber to read the plan's current version instead.
func (s *Store) GetPlanVersion(ctx context.Context, planID string, versionNumber int) (PlanVersion, error) {
	if versionNumber == 0 {
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return PlanVersion{}, err
		}
		versionNumber = plan.CurrentVersion
	}

	var v PlanVersion
	err := s.pool.QueryRow(ctx, `
		SELECT id, plan_id, version_number, content, prompt_inputs, deleted_at, created_at
		FROM plan_versions WHERE plan_id = $1 AND version_number = $2
	`, planID, versionNumber).Scan(&v.ID, &v.PlanID, &v.VersionNumber, &v.Content, &v.PromptInputs, &v.DeletedAt, &v.CreatedAt)
	if err != nil {
		return PlanVersion{}, mapErr(err)
	}
	if v.DeletedAt != nil {
		return PlanVersion{}, errs.New(errs.NotFound, "plan version has been deleted")
	}
	return v, nil
}

// ListPlanVersions returns every non-deleted version of planID, ordered
// oldest first.
func (s *Store) ListPlanVersions(ctx context.Context, planID string) ([]PlanVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, plan_id, version_number, content, prompt_inputs, deleted_at, created_at
		FROM plan_versions WHERE plan_id = $1 AND deleted_at IS NULL
		ORDER BY version_number ASC
	`, planID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []PlanVersion
	for rows.Next() {
		var v PlanVersion
		if err := rows.Scan(&v.ID, &v.PlanID, &v.VersionNumber, &v.Content, &v.PromptInputs, &v.DeletedAt, &v.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, v)
	}
	return out, mapErr(rows.Err())
}

// EditPlan appends a new version with the given content and sets it as
// current. Bumps the plan row's optimistic-concurrency version.
func (s *Store) EditPlan(ctx context.Context, planID string, content, promptInputs []byte) (PlanVersion, error) {
	return s.appendPlanVersion(ctx, planID, content, promptInputs)
}

// RerunPlan recomputes version versionNumber: it reuses that version's
// stored prompt inputs (spec.md §9 Open Question 2 — not the plan's
// "original" inputs) and appends newContent, supplied by the caller after
// the runner has re-invoked the LLM Gateway with those inputs, as the new
// current version.
func (s *Store) RerunPlan(ctx context.Context, planID string, versionNumber int, newContent []byte) (PlanVersion, error) {
	source, err := s.GetPlanVersion(ctx, planID, versionNumber)
	if err != nil {
		return PlanVersion{}, err
	}
	return s.appendPlanVersion(ctx, planID, newContent, source.PromptInputs)
}

// CopyPlanVersion duplicates sourceVersionNumber's content into a new
// version and sets it as current.
func (s *Store) CopyPlanVersion(ctx context.Context, planID string, sourceVersionNumber int) (PlanVersion, error) {
	source, err := s.GetPlanVersion(ctx, planID, sourceVersionNumber)
	if err != nil {
		return PlanVersion{}, err
	}
	return s.appendPlanVersion(ctx, planID, source.Content, source.PromptInputs)
}

func (s *Store) appendPlanVersion(ctx context.Context, planID string, content, promptInputs []byte) (PlanVersion, error) {
	var result PlanVersion
	err := withOptimisticRetry(ctx, func(ctx context.Context) (bool, error) {
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return false, err
		}
		if plan.DeletedAt != nil {
			return false, errs.New(errs.NotFound, "plan has been deleted")
		}

		versionID := uuid.NewString()

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return false, mapErr(err)
		}
		defer tx.Rollback(ctx)

		var highest int
		if err := tx.QueryRow(ctx, `SELECT coalesce(max(version_number), 0) FROM plan_versions WHERE plan_id = $1`, planID).Scan(&highest); err != nil {
			return false, mapErr(err)
		}
		nextVersionNumber := highest + 1

		tag, err := tx.Exec(ctx, `
			UPDATE plans SET current_version = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND version = $3
		`, nextVersionNumber, planID, plan.Version)
		if err != nil {
			return false, mapErr(err)
		}
		if tag.RowsAffected() != 1 {
			return false, nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO plan_versions (id, plan_id, version_number, content, prompt_inputs)
			VALUES ($1, $2, $3, $4, $5)
		`, versionID, planID, nextVersionNumber, content, promptInputs)
		if err != nil {
			return false, mapErr(err)
		}

		if err := tx.Commit(ctx); err != nil {
			return false, mapErr(err)
		}

		result = PlanVersion{ID: versionID, PlanID: planID, VersionNumber: nextVersionNumber, Content: content, PromptInputs: promptInputs}
		return true, nil
	})
	return result, err
}

// SetCurrentPlanVersion points planID's current pointer at versionNumber,
// which must exist and not be deleted.
func (s *Store) SetCurrentPlanVersion(ctx context.Context, planID string, versionNumber int) error {
	if _, err := s.GetPlanVersion(ctx, planID, versionNumber); err != nil {
		return err
	}
	return withOptimisticRetry(ctx, func(ctx context.Context) (bool, error) {
		plan, err := s.GetPlan(ctx, planID)
		if err != nil {
			return false, err
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE plans SET current_version = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND version = $3
		`, versionNumber, planID, plan.Version)
		if err != nil {
			return false, mapErr(err)
		}
		return tag.RowsAffected() == 1, nil
	})
}

// DeletePlanVersion soft-deletes versionNumber. Fails with
// ErrCannotDeleteLast if it is the only remaining non-deleted version.
func (s *Store) DeletePlanVersion(ctx context.Context, planID string, versionNumber int) error {
	versions, err := s.ListPlanVersions(ctx, planID)
	if err != nil {
		return err
	}
	if len(versions) <= 1 {
		return ErrCannotDeleteLast
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE plan_versions SET deleted_at = now()
		WHERE plan_id = $1 AND version_number = $2 AND deleted_at IS NULL
	`, planID, versionNumber)
	return mapErr(err)
}

// DeletePlan soft-deletes the whole plan.
func (s *Store) DeletePlan(ctx context.Context, planID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE plans SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, planID)
	return mapErr(err)
}
