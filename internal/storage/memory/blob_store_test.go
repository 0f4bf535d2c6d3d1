package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"success":true}`)
	uri, err := store.PutObject(context.Background(), "results/run.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://results/run.json", uri)

	payload[0] = '['
	stored, contentType, ok := store.Object("results/run.json")
	require.True(t, ok)
	require.Equal(t, `{"success":true}`, string(stored))
	require.Equal(t, "application/json", contentType)
	require.Equal(t, []string{"results/run.json"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	_, _, ok := NewBlobStore().Object("nope")
	require.False(t, ok)
}
