package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

func TestStore_NilClientDegradesToNoop(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()

	assert.Empty(t, s.History(ctx, "session-1"))

	s.AppendHistory(ctx, "session-1", schemas.SessionHistoryEntry{Role: "user", Content: "hi"})
	assert.Empty(t, s.History(ctx, "session-1"))

	assert.Nil(t, s.Mutation(ctx, "session-1"))

	s.SaveMutation(ctx, "session-1", &schemas.MutationState{Table: "scheduler_details"})
	assert.Nil(t, s.Mutation(ctx, "session-1"))

	// Clearing a mutation state that was never saved must not panic.
	s.ClearMutation(ctx, "session-1")
}

func TestHistoryKeyAndMutationKey_AreDistinctFingerprints(t *testing.T) {
	assert.NotEqual(t, historyKey("session-1"), mutationKey("session-1"))
	assert.NotEqual(t, historyKey("session-1"), historyKey("session-2"))
}
