package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/id/uuid"
	"github.com/JakeFAU/crawlrunner/internal/workspace"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type sequenceTokens struct {
	mu     sync.Mutex
	tokens []string
}

func (s *sequenceTokens) NewToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return "", errors.New("out of tokens")
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func TestAllocatePairsArtifactsByStem(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	clock := fixedClock{now: time.UnixMilli(1700000000123)}
	ws := workspace.New(workspace.Config{BaseDir: base, Prefix: "crawl"}, clock, &sequenceTokens{tokens: []string{"abc123"}}, zap.NewNop())

	arena, err := ws.Allocate(context.Background())
	require.NoError(t, err)

	require.Equal(t, "crawl-1700000000123-abc123", arena.Stem())
	require.Equal(t, filepath.Join(base, arena.Stem()), arena.Dir())
	require.Equal(t, filepath.Join(arena.Dir(), "crawl-1700000000123-abc123.py"), arena.ScriptPath())
	require.Equal(t, filepath.Join(arena.Dir(), "crawl-1700000000123-abc123.json"), arena.ResultPath())
	require.Equal(t, filepath.Join(arena.Dir(), "crawl-1700000000123-abc123.input.json"), arena.InputPath())

	info, err := os.Stat(arena.Dir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	clock := fixedClock{now: time.UnixMilli(42)}
	tokens := &sequenceTokens{tokens: []string{"dup", "dup", "fresh"}}
	ws := workspace.New(workspace.Config{BaseDir: base}, clock, tokens, zap.NewNop())

	first, err := ws.Allocate(context.Background())
	require.NoError(t, err)
	second, err := ws.Allocate(context.Background())
	require.NoError(t, err)

	require.Equal(t, "crawl-42-dup", first.Stem())
	require.Equal(t, "crawl-42-fresh", second.Stem())
}

func TestAllocateConcurrentArenasAreDistinct(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	ws := workspace.New(workspace.Config{BaseDir: base}, fixedClock{now: time.Now()}, uuid.New(), zap.NewNop())

	const n = 32
	var (
		mu   sync.Mutex
		dirs = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for range n {
		wg.Go(func() {
			arena, err := ws.Allocate(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			dirs[arena.Dir()] = struct{}{}
			mu.Unlock()
		})
	}
	wg.Wait()
	require.Len(t, dirs, n)
}

func TestAllocateRecreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "nested", "work")
	ws := workspace.New(workspace.Config{BaseDir: base}, fixedClock{now: time.Now()}, uuid.New(), zap.NewNop())
	require.NoError(t, os.RemoveAll(base))

	arena, err := ws.Allocate(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(arena.Dir(), base))
}

func TestAllocateBaseIsFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	ws := workspace.New(workspace.Config{BaseDir: file}, fixedClock{now: time.Now()}, uuid.New(), zap.NewNop())
	_, err := ws.Allocate(context.Background())
	require.Error(t, err)

	var cfgErr *crawler.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAllocateCanceledContext(t *testing.T) {
	t.Parallel()

	ws := workspace.New(workspace.Config{BaseDir: t.TempDir()}, fixedClock{now: time.Now()}, uuid.New(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ws.Allocate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestArenaWriteAndRemove(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	ws := workspace.New(workspace.Config{BaseDir: base}, fixedClock{now: time.Now()}, uuid.New(), zap.NewNop())
	arena, err := ws.Allocate(context.Background())
	require.NoError(t, err)

	require.NoError(t, arena.WriteScript([]byte("print('hi')")))
	require.NoError(t, arena.WriteInput([]byte(`{"url":"https://example.com"}`)))
	require.NoError(t, os.WriteFile(arena.ResultPath(), []byte(`{}`), 0o600))

	require.NoError(t, arena.Remove())
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Removing twice is harmless.
	require.NoError(t, arena.Remove())
}

func TestSweepRemovesStaleArenasOnly(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	now := time.Now()
	ws := workspace.New(workspace.Config{BaseDir: base}, fixedClock{now: now}, uuid.New(), zap.NewNop())

	stale, err := ws.Allocate(context.Background())
	require.NoError(t, err)
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale.Dir(), old, old))

	fresh, err := ws.Allocate(context.Background())
	require.NoError(t, err)

	unrelated := filepath.Join(base, "keep-me")
	require.NoError(t, os.Mkdir(unrelated, 0o700))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	removed, err := ws.Sweep(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(stale.Dir())
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.Dir())
	require.NoError(t, err)
	_, err = os.Stat(unrelated)
	require.NoError(t, err)
}
