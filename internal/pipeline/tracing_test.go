package pipeline_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/clock/system"
	"github.com/JakeFAU/crawlrunner/internal/correlator"
	"github.com/JakeFAU/crawlrunner/internal/id/uuid"
	"github.com/JakeFAU/crawlrunner/internal/pipeline"
	"github.com/JakeFAU/crawlrunner/internal/script"
	"github.com/JakeFAU/crawlrunner/internal/supervisor"
	"github.com/JakeFAU/crawlrunner/internal/workspace"
)

func tracedPipeline(t *testing.T, crawl, python string) (*pipeline.Pipeline, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	synth, err := script.New(script.Config{})
	require.NoError(t, err)
	ids := uuid.New()
	clock := system.New()
	p, err := pipeline.New(pipeline.Config{PythonPath: python, Timeout: 10 * time.Second}, pipeline.Deps{
		Workspace:  workspace.New(workspace.Config{BaseDir: t.TempDir()}, clock, ids, zap.NewNop()),
		Renderer:   shellRenderer{crawl: crawl, synth: synth},
		Runner:     supervisor.New(supervisor.Config{}, zap.NewNop()),
		Correlator: correlator.New(0, zap.NewNop()),
		IDs:        ids,
		Clock:      clock,
		Tracer:     tp.Tracer("test"),
	}, zap.NewNop())
	require.NoError(t, err)
	return p, recorder
}

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestExecuteEmitsSpans(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	p, recorder := tracedPipeline(t, "printf '%s' '"+successBody+"' > \"$2\"\n", sh)
	run, err := p.Execute(t.Context(), params("https://example.com"))
	require.NoError(t, err)

	spans := recorder.Ended()
	root := spanNamed(spans, "crawl")
	require.NotNil(t, root)
	child := spanNamed(spans, "crawl.subprocess")
	require.NotNil(t, child)
	require.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())

	var events []string
	for _, ev := range root.Events() {
		events = append(events, ev.Name)
	}
	require.Equal(t, []string{"allocating", "rendering", "running", "correlating", "cleaning", "done"}, events)

	attrs := map[string]any{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	require.Equal(t, run.RunID, attrs["crawl.run_id"])
	require.Equal(t, true, attrs["crawl.success"])
}

func TestExecuteSpanRecordsSpawnFailure(t *testing.T) {
	t.Parallel()

	p, recorder := tracedPipeline(t, "exit 0\n", "/nonexistent/python3")
	_, err := p.Execute(t.Context(), params("https://example.com"))
	require.Error(t, err)

	root := spanNamed(recorder.Ended(), "crawl")
	require.NotNil(t, root)
	require.Equal(t, codes.Error, root.Status().Code)
}
