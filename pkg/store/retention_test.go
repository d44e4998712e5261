package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeSoftDeleted_RemovesOnlyPastRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	convID := setupConversation(t, s)

	old, _, err := s.CreatePlan(ctx, convID, "acme", "user-1", "planner", []byte("old"), nil)
	require.NoError(t, err)
	recent, _, err := s.CreatePlan(ctx, convID, "acme", "user-1", "planner", []byte("recent"), nil)
	require.NoError(t, err)

	require.NoError(t, s.DeletePlan(ctx, old.ID))
	require.NoError(t, s.DeletePlan(ctx, recent.ID))

	_, err = s.pool.Exec(ctx, `UPDATE plans SET deleted_at = $1 WHERE id = $2`, time.Now().Add(-48*time.Hour), old.ID)
	require.NoError(t, err)

	count, err := s.PurgeSoftDeleted(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = s.GetPlan(ctx, old.ID)
	assert.Error(t, err)
	_, err = s.GetPlan(ctx, recent.ID)
	assert.NoError(t, err, "soft-deleted within retention window must survive the purge")
}

func TestPurgeObservabilityEvents_RemovesOnlyOlderThanCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, ObservabilityEventRow{
		OrgSlug: "acme", UserID: "user-1", ConversationID: "conv-1", AgentSlug: "planner",
		SourceApp: "dispatch", EventType: "task.progress",
	}))

	cutoff := time.Now().Add(1 * time.Hour)
	count, err := s.PurgeObservabilityEvents(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, err := s.History(ctx, "acme", HistoryFilter{Since: time.Now().Add(-time.Hour), Until: time.Now(), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
