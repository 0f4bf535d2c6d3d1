// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"regexp"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

// TestGeneratorNewToken checks token shape and uniqueness.
func TestGeneratorNewToken(t *testing.T) {
	t.Parallel()

	gen := New()
	hexToken := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := make(map[string]struct{}, 100)
	for range 100 {
		token, err := gen.NewToken()
		require.NoError(t, err)
		require.Regexp(t, hexToken, token)
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
}
