package store

import (
	"context"
	"time"
)

// PurgeSoftDeleted hard-deletes plan/deliverable rows (and their versions)
// that were soft-deleted more than olderThan ago. Versions are purged
// before their parents to satisfy the foreign key, though ON DELETE CASCADE
// on the migration's version tables would make the ordering here a belt
// rather than a requirement. Returns the total row count removed across all
// four tables.
func (s *Store) PurgeSoftDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	tables := []string{"plan_versions", "deliverable_versions", "plans", "deliverables"}
	for _, table := range tables {
		tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE deleted_at IS NOT NULL AND deleted_at < $1`, olderThan)
		if err != nil {
			return total, mapErr(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// PurgeObservabilityEvents hard-deletes durable sink rows older than
// olderThan, bounding the table spec.md's Observability Bus (C5) keeps
// appending to indefinitely otherwise.
func (s *Store) PurgeObservabilityEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observability_events WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
