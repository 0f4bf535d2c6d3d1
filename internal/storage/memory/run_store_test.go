package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

func TestRunStoreRecordsInOrder(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	require.NoError(t, store.RecordRun(ctx, crawler.RunRecord{ID: "b", URL: "https://b.example"}))
	require.NoError(t, store.RecordRun(ctx, crawler.RunRecord{ID: "a", URL: "https://a.example", Success: true}))

	runs := store.Runs()
	require.Len(t, runs, 2)
	require.Equal(t, "b", runs[0].ID)
	require.Equal(t, "a", runs[1].ID)

	got, ok := store.Run("a")
	require.True(t, ok)
	require.True(t, got.Success)
}

func TestRunStoreRejectsDuplicatesAndBlankIDs(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	require.NoError(t, store.RecordRun(ctx, crawler.RunRecord{ID: "dup"}))
	require.Error(t, store.RecordRun(ctx, crawler.RunRecord{ID: "dup"}))
	require.Error(t, store.RecordRun(ctx, crawler.RunRecord{}))
}
