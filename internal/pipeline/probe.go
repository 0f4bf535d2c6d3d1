package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/metrics"
	"github.com/JakeFAU/crawlrunner/internal/supervisor"
)

const defaultProbeTimeout = 30 * time.Second

// Health is the result of one engine probe.
type Health struct {
	Healthy  bool
	Detail   string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Probe runs the minimal probe script and reports whether the engine loads.
// It never returns an error: every failure is an unhealthy Health.
func (p *Pipeline) Probe(ctx context.Context) Health {
	ctx, span := p.deps.Tracer.Start(ctx, "engine.probe")
	defer span.End()
	h := p.probe(ctx)
	span.SetAttributes(attribute.Bool("probe.healthy", h.Healthy), attribute.Int("process.exit_code", h.ExitCode))
	if !h.Healthy {
		span.SetStatus(codes.Error, "engine unavailable")
	}
	metrics.ObserveHealthProbe(h.Healthy)
	if !h.Healthy {
		p.logger.Warn("engine probe failed", zap.Int("exit_code", h.ExitCode), zap.String("detail", h.Detail))
	}
	return h
}

func (p *Pipeline) probe(ctx context.Context) Health {
	arena, err := p.deps.Workspace.Allocate(ctx)
	if err != nil {
		return Health{ExitCode: -1, Detail: fmt.Sprintf("engine unavailable: %v", err)}
	}
	defer p.cleanup(arena, p.logger.With(zap.String("arena", arena.Dir())))

	artifact, err := p.deps.Renderer.RenderProbe()
	if err != nil {
		return Health{ExitCode: -1, Detail: fmt.Sprintf("engine unavailable: render probe: %v", err)}
	}
	if err := arena.WriteScript(artifact.Source); err != nil {
		return Health{ExitCode: -1, Detail: fmt.Sprintf("engine unavailable: %v", err)}
	}

	timeout := p.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	// A health check must answer while every crawl slot is busy.
	outcome, err := p.deps.Runner.Run(ctx, supervisor.Command{
		Path:      p.cfg.PythonPath,
		Args:      []string{arena.ScriptPath()},
		Dir:       arena.Dir(),
		Env:       []string{"PYTHONUNBUFFERED=1"},
		Timeout:   timeout,
		Unmetered: true,
	})
	h := Health{
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Duration: outcome.Duration(),
	}
	switch {
	case err != nil:
		h.Detail = diagnostic(fmt.Sprintf("engine unavailable: %v", err), outcome)
	case outcome.ExitCode != 0:
		h.Detail = diagnostic(fmt.Sprintf("engine unavailable: probe exited with code %d", outcome.ExitCode), outcome)
	default:
		h.Healthy = true
		h.Detail = "OK"
	}
	return h
}

func diagnostic(headline string, outcome supervisor.Outcome) string {
	var b strings.Builder
	b.WriteString(headline)
	if s := strings.TrimSpace(outcome.Stdout); s != "" {
		b.WriteString("\nstdout:\n")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(outcome.Stderr); s != "" {
		b.WriteString("\nstderr:\n")
		b.WriteString(s)
	}
	return b.String()
}
