// Package pipeline drives one crawl from parameters to a correlated result.
//
// Each execution walks a fixed sequence of states:
//
//	allocating -> rendering -> running -> correlating -> cleaning -> done
//
// Any state may end in failed instead. Cleaning is entered on every path that
// got as far as an arena, so no artifacts outlive the execution. Post-run
// sinks (archive, run record, notification) run after the arena is gone and
// never affect the returned result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/correlator"
	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/metrics"
	"github.com/JakeFAU/crawlrunner/internal/script"
	"github.com/JakeFAU/crawlrunner/internal/supervisor"
	"github.com/JakeFAU/crawlrunner/internal/workspace"
)

// State is a pipeline stage.
type State string

// Pipeline states.
const (
	StateAllocating  State = "allocating"
	StateRendering   State = "rendering"
	StateRunning     State = "running"
	StateCorrelating State = "correlating"
	StateCleaning    State = "cleaning"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Runner executes a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd supervisor.Command) (supervisor.Outcome, error)
}

// Config holds interpreter settings.
type Config struct {
	// PythonPath is the interpreter that runs synthesized scripts.
	PythonPath string
	// Timeout bounds a crawl subprocess. Zero defers to the runner default.
	Timeout time.Duration
	// ProbeTimeout bounds the health probe subprocess.
	ProbeTimeout time.Duration
}

const tracerName = "github.com/JakeFAU/crawlrunner/internal/pipeline"

// Deps are the collaborators a Pipeline needs. Recorder and Tracer are
// optional; Tracer defaults to the global provider.
type Deps struct {
	Workspace  *workspace.Workspace
	Renderer   script.Renderer
	Runner     Runner
	Correlator *correlator.Correlator
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
	Recorder   *Recorder
	Tracer     trace.Tracer
}

// Execution is everything known about one finished run.
type Execution struct {
	RunID    string
	Arena    string
	Params   crawler.CrawlParameters
	State    State
	Result   correlator.Result
	Process  supervisor.Outcome
	Started  time.Time
	Finished time.Time
	Record   *crawler.RunRecord

	span       trace.Span
	stageStart time.Time
}

// Duration returns the wall time of the execution.
func (e *Execution) Duration() time.Duration {
	if e.Finished.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// Pipeline executes crawls.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New builds a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PythonPath == "" {
		return nil, errors.New("pipeline: python path is required")
	}
	if deps.Workspace == nil || deps.Renderer == nil || deps.Runner == nil ||
		deps.Correlator == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("pipeline: missing dependency")
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}, nil
}

// Execute runs one crawl. A nil error means Result holds a CrawlResult to
// return to the caller, whether the crawl itself succeeded or not. A non-nil
// error is one of *crawler.ConfigurationError, *crawler.SpawnError,
// *crawler.TimeoutError or a context error.
func (p *Pipeline) Execute(ctx context.Context, params crawler.CrawlParameters) (*Execution, error) {
	ctx, span := p.deps.Tracer.Start(ctx, "crawl", trace.WithAttributes(attribute.String("crawl.url", params.URL)))
	defer span.End()

	e := &Execution{Params: params, Started: p.deps.Clock.Now(), stageStart: time.Now(), span: span}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		err = fmt.Errorf("generate run id: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return e, err
	}
	e.RunID = runID
	span.SetAttributes(attribute.String("crawl.run_id", runID))
	log := p.logger.With(zap.String("run_id", runID), zap.String("url", params.URL))

	err = p.run(ctx, e, log)
	e.Finished = p.deps.Clock.Now()
	if err != nil {
		p.transition(e, StateFailed, log)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveRun(params.URL, outcomeForError(err), e.Duration())
		log.Warn("crawl failed", zap.Error(err), zap.Duration("duration", e.Duration()))
		return e, err
	}
	p.transition(e, StateDone, log)
	span.SetAttributes(
		attribute.Bool("crawl.success", e.Result.Parsed.Success),
		attribute.Bool("crawl.fallback", e.Result.Fallback),
		attribute.Int("crawl.exit_code", e.Process.ExitCode),
	)
	metrics.ObserveRun(params.URL, outcomeForResult(e.Result), e.Duration())
	log.Info("crawl finished",
		zap.Bool("success", e.Result.Parsed.Success),
		zap.Bool("fallback", e.Result.Fallback),
		zap.Int("exit_code", e.Process.ExitCode),
		zap.Duration("duration", e.Duration()),
	)

	if p.deps.Recorder != nil {
		e.Record = p.deps.Recorder.Record(context.WithoutCancel(ctx), e)
	}
	return e, nil
}

// run owns the arena. Its deferred cleanup runs before Execute reports.
func (p *Pipeline) run(ctx context.Context, e *Execution, log *zap.Logger) error {
	p.transition(e, StateAllocating, log)
	arena, err := p.deps.Workspace.Allocate(ctx)
	if err != nil {
		return err
	}
	e.Arena = arena.Stem()
	log = log.With(zap.String("arena", arena.Dir()))
	defer func() {
		p.transition(e, StateCleaning, log)
		p.cleanup(arena, log)
	}()

	p.transition(e, StateRendering, log)
	artifact, err := p.deps.Renderer.Render(e.Params)
	if err != nil {
		return &crawler.ConfigurationError{Op: "render script", Err: err}
	}
	if err := arena.WriteScript(artifact.Source); err != nil {
		return err
	}
	if err := arena.WriteInput(artifact.Input); err != nil {
		return err
	}

	p.transition(e, StateRunning, log)
	runCtx, runSpan := p.deps.Tracer.Start(ctx, "crawl.subprocess")
	outcome, err := p.deps.Runner.Run(runCtx, supervisor.Command{
		Path:    p.cfg.PythonPath,
		Args:    []string{arena.ScriptPath(), arena.InputPath(), arena.ResultPath()},
		Dir:     arena.Dir(),
		Env:     []string{"PYTHONUNBUFFERED=1"},
		Timeout: p.cfg.Timeout,
	})
	runSpan.SetAttributes(attribute.Int("process.exit_code", outcome.ExitCode))
	runSpan.End()
	e.Process = outcome
	if err != nil {
		return err
	}

	p.transition(e, StateCorrelating, log)
	e.Result = p.deps.Correlator.Correlate(arena.ResultPath(), e.Params.URL, outcome)
	return nil
}

func (p *Pipeline) cleanup(arena *workspace.Arena, log *zap.Logger) {
	if err := arena.Remove(); err != nil {
		metrics.ObserveCleanupFailure()
		log.Warn("failed to remove crawl artifacts", zap.Error(err))
	}
}

func (p *Pipeline) transition(e *Execution, next State, log *zap.Logger) {
	now := time.Now()
	if e.State != "" {
		metrics.ObserveStage(string(e.State), now.Sub(e.stageStart))
	}
	e.State = next
	e.stageStart = now
	if e.span != nil {
		e.span.AddEvent(string(next))
	}
	log.Debug("pipeline state", zap.String("state", string(next)))
}

func outcomeForResult(res correlator.Result) string {
	switch {
	case res.Fallback:
		return metrics.OutcomeFallback
	case res.Parsed.Success:
		return metrics.OutcomeSuccess
	default:
		return metrics.OutcomeFailure
	}
}

func outcomeForError(err error) string {
	var (
		timeoutErr *crawler.TimeoutError
		spawnErr   *crawler.SpawnError
		cfgErr     *crawler.ConfigurationError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	case errors.As(err, &spawnErr):
		return metrics.OutcomeSpawn
	case errors.As(err, &cfgErr):
		return metrics.OutcomeConfig
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeConfig
	}
}
