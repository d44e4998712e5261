package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentgov/pipeline/pkg/errs"
)

// CreateDeliverable inserts a new Deliverable with its first version.
func (s *Store) CreateDeliverable(ctx context.Context, conversationID, orgSlug, userID, agentSlug, deliverableType string, content, promptInputs []byte) (Deliverable, DeliverableVersion, error) {
	deliverableID := uuid.NewString()
	versionID := uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deliverable{}, DeliverableVersion{}, mapErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO deliverables (id, conversation_id, org_slug, user_id, agent_slug, type, current_version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
	`, deliverableID, conversationID, orgSlug, userID, agentSlug, deliverableType)
	if err != nil {
		return Deliverable{}, DeliverableVersion{}, mapErr(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO deliverable_versions (id, deliverable_id, version_number, content, prompt_inputs)
		VALUES ($1, $2, 1, $3, $4)
	`, versionID, deliverableID, content, promptInputs)
	if err != nil {
		return Deliverable{}, DeliverableVersion{}, mapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Deliverable{}, DeliverableVersion{}, mapErr(err)
	}

	d, err := s.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return Deliverable{}, DeliverableVersion{}, err
	}
	v, err := s.GetDeliverableVersion(ctx, deliverableID, 1)
	return d, v, err
}

// GetDeliverable reads the deliverable header row.
func (s *Store) GetDeliverable(ctx context.Context, deliverableID string) (Deliverable, error) {
	var d Deliverable
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, org_slug, user_id, agent_slug, type, current_version, version, deleted_at, created_at, updated_at
		FROM deliverables WHERE id = $1
	`, deliverableID).Scan(&d.ID, &d.ConversationID, &d.OrgSlug, &d.UserID, &d.AgentSlug, &d.Type, &d.CurrentVersion, &d.Version, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Deliverable{}, mapErr(err)
	}
	return d, nil
}

// GetDeliverableVersion reads a specific non-deleted version. Pass 0 for
// versionNumber to read the deliverable's current version.
func (s *Store) GetDeliverableVersion(ctx context.Context, deliverableID string, versionNumber int) (DeliverableVersion, error) {
	if versionNumber == 0 {
		d, err := s.GetDeliverable(ctx, deliverableID)
		if err != nil {
			return DeliverableVersion{}, err
		}
		versionNumber = d.CurrentVersion
	}

	var v DeliverableVersion
	err := s.pool.QueryRow(ctx, `
		SELECT id, deliverable_id, version_number, content, prompt_inputs, deleted_at, created_at
		FROM deliverable_versions WHERE deliverable_id = $1 AND version_number = $2
	`, deliverableID, versionNumber).Scan(&v.ID, &v.DeliverableID, &v.VersionNumber, &v.Content, &v.PromptInputs, &v.DeletedAt, &v.CreatedAt)
	if err != nil {
		return DeliverableVersion{}, mapErr(err)
	}
	if v.DeletedAt != nil {
		return DeliverableVersion{}, errs.New(errs.NotFound, "deliverable version has been deleted")
	}
	return v, nil
}

// ListDeliverableVersions returns every non-deleted version, oldest first.
func (s *Store) ListDeliverableVersions(ctx context.Context, deliverableID string) ([]DeliverableVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, deliverable_id, version_number, content, prompt_inputs, deleted_at, created_at
		FROM deliverable_versions WHERE deliverable_id = $1 AND deleted_at IS NULL
		ORDER BY version_number ASC
	`, deliverableID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []DeliverableVersion
	for rows.Next() {
		var v DeliverableVersion
		if err := rows.Scan(&v.ID, &v.DeliverableID, &v.VersionNumber, &v.Content, &v.PromptInputs, &v.DeletedAt, &v.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, v)
	}
	return out, mapErr(rows.Err())
}

// EditDeliverable appends a new version and sets it as current.
func (s *Store) EditDeliverable(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableVersion, error) {
	return s.appendDeliverableVersion(ctx, deliverableID, content, promptInputs)
}

// RerunDeliverable recomputes versionNumber, reusing its stored prompt
// inputs (see RerunPlan for the same Open Question 2 resolution).
func (s *Store) RerunDeliverable(ctx context.Context, deliverableID string, versionNumber int, newContent []byte) (DeliverableVersion, error) {
	source, err := s.GetDeliverableVersion(ctx, deliverableID, versionNumber)
	if err != nil {
		return DeliverableVersion{}, err
	}
	return s.appendDeliverableVersion(ctx, deliverableID, newContent, source.PromptInputs)
}

// CopyDeliverableVersion duplicates sourceVersionNumber into a new current
// version.
func (s *Store) CopyDeliverableVersion(ctx context.Context, deliverableID string, sourceVersionNumber int) (DeliverableVersion, error) {
	source, err := s.GetDeliverableVersion(ctx, deliverableID, sourceVersionNumber)
	if err != nil {
		return DeliverableVersion{}, err
	}
	return s.appendDeliverableVersion(ctx, deliverableID, source.Content, source.PromptInputs)
}

// MergeDeliverableVersions combines two versions' content (mergedContent,
// computed by the caller — the runner owns the merge policy) into a new
// current version. This action has no Plan analogue (spec.md §4.2: merge
// is deliverables-only).
func (s *Store) MergeDeliverableVersions(ctx context.Context, deliverableID string, firstVersionNumber, secondVersionNumber int, mergedContent []byte) (DeliverableVersion, error) {
	first, err := s.GetDeliverableVersion(ctx, deliverableID, firstVersionNumber)
	if err != nil {
		return DeliverableVersion{}, err
	}
	if _, err := s.GetDeliverableVersion(ctx, deliverableID, secondVersionNumber); err != nil {
		return DeliverableVersion{}, err
	}
	return s.appendDeliverableVersion(ctx, deliverableID, mergedContent, first.PromptInputs)
}

func (s *Store) appendDeliverableVersion(ctx context.Context, deliverableID string, content, promptInputs []byte) (DeliverableVersion, error) {
	var result DeliverableVersion
	err := withOptimisticRetry(ctx, func(ctx context.Context) (bool, error) {
		d, err := s.GetDeliverable(ctx, deliverableID)
		if err != nil {
			return false, err
		}
		if d.DeletedAt != nil {
			return false, errs.New(errs.NotFound, "deliverable has been deleted")
		}

		versionID := uuid.NewString()

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return false, mapErr(err)
		}
		defer tx.Rollback(ctx)

		var highest int
		if err := tx.QueryRow(ctx, `SELECT coalesce(max(version_number), 0) FROM deliverable_versions WHERE deliverable_id = $1`, deliverableID).Scan(&highest); err != nil {
			return false, mapErr(err)
		}
		nextVersionNumber := highest + 1

		tag, err := tx.Exec(ctx, `
			UPDATE deliverables SET current_version = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND version = $3
		`, nextVersionNumber, deliverableID, d.Version)
		if err != nil {
			return false, mapErr(err)
		}
		if tag.RowsAffected() != 1 {
			return false, nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO deliverable_versions (id, deliverable_id, version_number, content, prompt_inputs)
			VALUES ($1, $2, $3, $4, $5)
		`, versionID, deliverableID, nextVersionNumber, content, promptInputs)
		if err != nil {
			return false, mapErr(err)
		}

		if err := tx.Commit(ctx); err != nil {
			return false, mapErr(err)
		}

		result = DeliverableVersion{ID: versionID, DeliverableID: deliverableID, VersionNumber: nextVersionNumber, Content: content, PromptInputs: promptInputs}
		return true, nil
	})
	return result, err
}

// SetCurrentDeliverableVersion points the current pointer at versionNumber.
func (s *Store) SetCurrentDeliverableVersion(ctx context.Context, deliverableID string, versionNumber int) error {
	if _, err := s.GetDeliverableVersion(ctx, deliverableID, versionNumber); err != nil {
		return err
	}
	return withOptimisticRetry(ctx, func(ctx context.Context) (bool, error) {
		d, err := s.GetDeliverable(ctx, deliverableID)
		if err != nil {
			return false, err
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE deliverables SET current_version = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND version = $3
		`, versionNumber, deliverableID, d.Version)
		if err != nil {
			return false, mapErr(err)
		}
		return tag.RowsAffected() == 1, nil
	})
}

// DeleteDeliverableVersion soft-deletes versionNumber, refusing to delete
// the last remaining non-deleted version.
func (s *Store) DeleteDeliverableVersion(ctx context.Context, deliverableID string, versionNumber int) error {
	versions, err := s.ListDeliverableVersions(ctx, deliverableID)
	if err != nil {
		return err
	}
	if len(versions) <= 1 {
		return ErrCannotDeleteLast
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE deliverable_versions SET deleted_at = now()
		WHERE deliverable_id = $1 AND version_number = $2 AND deleted_at IS NULL
	`, deliverableID, versionNumber)
	return mapErr(err)
}

// DeleteDeliverable soft-deletes the whole deliverable.
func (s *Store) DeleteDeliverable(ctx context.Context, deliverableID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deliverables SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, deliverableID)
	return mapErr(err)
}
