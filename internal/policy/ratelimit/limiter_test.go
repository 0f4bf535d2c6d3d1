package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstThenRejects(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	l := New(Config{RPS: 1, Burst: 2})
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	// Buckets are per client.
	require.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	require.False(t, l.Enabled())
	for range 100 {
		require.True(t, l.Allow("client"))
	}
	require.Zero(t, l.Clients())
}

func TestLimiterPrunesIdleClients(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	l := New(Config{RPS: 5, Burst: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	require.Equal(t, 2, l.Clients())

	now = now.Add(2 * time.Minute)
	require.True(t, l.Allow("c"))
	require.Equal(t, 1, l.Clients())
}
