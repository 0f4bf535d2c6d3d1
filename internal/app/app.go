// Package app builds the long-lived services of the crawl runner from
// configuration, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/api"
	"github.com/JakeFAU/crawlrunner/internal/clock/system"
	"github.com/JakeFAU/crawlrunner/internal/config"
	"github.com/JakeFAU/crawlrunner/internal/correlator"
	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/hash/sha256"
	"github.com/JakeFAU/crawlrunner/internal/id/uuid"
	"github.com/JakeFAU/crawlrunner/internal/pipeline"
	"github.com/JakeFAU/crawlrunner/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/crawlrunner/internal/publisher/pubsub"
	"github.com/JakeFAU/crawlrunner/internal/script"
	"github.com/JakeFAU/crawlrunner/internal/storage"
	"github.com/JakeFAU/crawlrunner/internal/storage/postgres"
	"github.com/JakeFAU/crawlrunner/internal/supervisor"
	"github.com/JakeFAU/crawlrunner/internal/telemetry"
	"github.com/JakeFAU/crawlrunner/internal/workspace"
)

// App holds the shared services. It is built once at startup and closed on
// shutdown.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	workspace *workspace.Workspace
	pipeline  *pipeline.Pipeline
	server    *api.Server
	closers   []func()
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Workspace returns the shared arena allocator.
func (a *App) Workspace() *workspace.Workspace { return a.workspace }

// Pipeline returns the crawl pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Server returns the HTTP API.
func (a *App) Server() *api.Server { return a.server }

// New wires every component described by cfg. Optional sinks (archive, run
// ledger, notifications) are only built when configured. It fails fast if a
// configured sink cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services")

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: "crawlrunner",
			ProjectID:   cfg.Tracing.ProjectID,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.onClose("tracing", func() error { return tp.Shutdown(context.Background()) })
	}

	clock := system.New()
	ids := uuid.New()

	a.workspace = workspace.New(workspace.Config{
		BaseDir: cfg.Runner.WorkspaceDir,
		Prefix:  cfg.Runner.ArtifactPrefix,
	}, clock, ids, logger.Named("workspace"))

	synth, err := script.New(script.Config{EngineModule: cfg.Runner.EngineModule})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init script synthesizer: %w", err)
	}

	runner := supervisor.New(supervisor.Config{
		Timeout:        cfg.RunTimeout(),
		MaxConcurrent:  cfg.Runner.MaxConcurrent,
		MaxOutputBytes: cfg.Runner.MaxOutputBytes,
		Env:            cfg.Runner.Env,
		KillGrace:      cfg.KillGrace(),
	}, logger.Named("supervisor"))

	recorder, err := a.buildRecorder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		PythonPath:   cfg.Runner.PythonPath,
		Timeout:      cfg.RunTimeout(),
		ProbeTimeout: cfg.ProbeTimeout(),
	}, pipeline.Deps{
		Workspace:  a.workspace,
		Renderer:   synth,
		Runner:     runner,
		Correlator: correlator.New(cfg.Runner.MaxResultBytes, logger.Named("correlator")),
		IDs:        ids,
		Clock:      clock,
		Recorder:   recorder,
	}, logger.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	opts := api.Options{
		Defaults:       cfg.CrawlDefaults(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		Limiter:        ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst}),
	}
	if cfg.Auth.Enabled {
		opts.APIKey = cfg.Auth.APIKey
	}
	a.server = api.NewServer(opts, a.pipeline, a.pipeline, a.workspace, logger)

	logger.Info("application services initialized",
		zap.String("workspace", a.workspace.Dir()),
		zap.String("python", cfg.Runner.PythonPath),
		zap.Int("max_concurrent", cfg.Runner.MaxConcurrent),
	)
	return a, nil
}

func (a *App) buildRecorder(ctx context.Context) (*pipeline.Recorder, error) {
	cfg := a.cfg

	blobs, err := storage.NewBlobStore(ctx, storage.Config{
		Provider:  cfg.Storage.Provider,
		LocalDir:  cfg.Storage.LocalDir,
		GCSBucket: cfg.Storage.GCSBucket,
	}, a.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		a.onClose("storage", c.Close)
	}

	var runs crawler.RunStore
	if cfg.DB.DSN != "" {
		store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init run store: %w", err)
		}
		a.onClose("run store", func() error { store.Close(); return nil })
		runs = store
	}

	var publisher crawler.Publisher
	if cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.Open(ctx, cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.onClose("publisher", pub.Close)
		publisher = pub
	}

	if blobs == nil && runs == nil && publisher == nil {
		return nil, nil
	}
	return pipeline.NewRecorder(pipeline.RecorderConfig{
		ArchivePrefix: cfg.Storage.Prefix,
		Topic:         cfg.PubSub.TopicName,
		Timeout:       cfg.SinkTimeout(),
	}, sha256.New(), blobs, runs, publisher, a.logger.Named("recorder")), nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, func() {
		if err := fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", name), zap.Error(err))
		}
	})
}

// Close releases sinks in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
