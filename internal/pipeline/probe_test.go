package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlrunner/internal/pipeline"
)

func TestProbeHealthy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", "echo crawl4ai 0.6.3\nexit 0\n", pipeline.Config{}, nil)

	health := h.pipeline.Probe(t.Context())
	require.True(t, health.Healthy)
	require.Equal(t, "OK", health.Detail)
	require.Equal(t, 0, health.ExitCode)
	require.Contains(t, health.Stdout, "crawl4ai")
	h.requireEmptyWorkspace(t)
}

func TestProbeUnhealthyExitSurfacesOutput(t *testing.T) {
	t.Parallel()

	probe := "echo checking\necho \"ModuleNotFoundError: No module named 'crawl4ai'\" >&2\nexit 1\n"
	h := newHarness(t, "", probe, pipeline.Config{}, nil)

	health := h.pipeline.Probe(t.Context())
	require.False(t, health.Healthy)
	require.Equal(t, 1, health.ExitCode)
	require.Contains(t, health.Detail, "exited with code 1")
	require.Contains(t, health.Detail, "checking")
	require.Contains(t, health.Detail, "ModuleNotFoundError")
	h.requireEmptyWorkspace(t)
}

func TestProbeSpawnFailureIsUnhealthy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", "exit 0\n", pipeline.Config{PythonPath: "/nonexistent/python3"}, nil)

	health := h.pipeline.Probe(t.Context())
	require.False(t, health.Healthy)
	require.Equal(t, -1, health.ExitCode)
	require.Contains(t, health.Detail, "engine unavailable")
	h.requireEmptyWorkspace(t)
}

func TestProbeTimeoutIsUnhealthy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", "sleep 30\n", pipeline.Config{ProbeTimeout: 200 * time.Millisecond}, nil)

	health := h.pipeline.Probe(t.Context())
	require.False(t, health.Healthy)
	require.Contains(t, health.Detail, "timed out")
	h.requireEmptyWorkspace(t)
}

func TestHealthCheckIsNotQueuedBehindCrawls(t *testing.T) {
	t.Parallel()

	crawl := "sleep 2\ncat > \"$2\" <<'EOF'\n" + successBody + "\nEOF\n"
	h := newHarnessWithSlots(t, crawl, "exit 0\n", pipeline.Config{ProbeTimeout: 500 * time.Millisecond}, nil, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.pipeline.Execute(context.Background(), params("https://example.com"))
	}()
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	health := h.pipeline.Probe(t.Context())
	require.True(t, health.Healthy, health.Detail)
	require.Less(t, time.Since(start), time.Second)
	<-done
}
