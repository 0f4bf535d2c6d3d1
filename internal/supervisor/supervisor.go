// Package supervisor owns the lifecycle of crawl subprocesses.
//
// Run spawns one process with stdout and stderr copied into capped buffers
// (a full pipe would otherwise stall the child) and returns once the process
// has exited and both streams are closed. A descendant that keeps the pipes
// open after the script exits, or after a kill, gets KillGrace before the
// pipes are closed on it, so a detached helper cannot stretch a run past its
// deadline. A caller never observes a result file before the child is done.
//
// The exit code is advisory. Run returns a nil error for any process that ran
// to completion, whatever its code; the result file decides success. Errors
// are reserved for a process that could not start (*crawler.SpawnError), one
// killed at its deadline (*crawler.TimeoutError), or a canceled caller.
//
// Concurrency is bounded by a weighted semaphore so a burst of requests cannot
// fork an unbounded number of interpreters.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/metrics"
)

const (
	defaultMaxOutputBytes = 1 << 20
	defaultKillGrace      = 5 * time.Second
)

// Config controls process limits.
type Config struct {
	// Timeout is the default deadline for a process. Zero disables it.
	Timeout time.Duration
	// MaxConcurrent bounds simultaneously running processes. Zero means unbounded.
	MaxConcurrent int
	// MaxOutputBytes caps how much of each stream is retained.
	MaxOutputBytes int
	// Env is appended to the inherited environment of every child.
	Env []string
	// KillGrace bounds how long Run lingers on pipes still held by
	// descendants once the process has exited or been killed.
	KillGrace time.Duration
}

// Command describes one process to run.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration // overrides Config.Timeout when > 0
	// Unmetered runs skip the concurrency limit. Health checks use it so
	// they are not queued behind long crawls.
	Unmetered bool
}

// Outcome is everything observed about one finished process.
type Outcome struct {
	Path            string
	Args            []string
	PID             int
	Started         time.Time
	Stopped         time.Time
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// Duration returns the wall time between spawn and exit.
func (o Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Stopped.IsZero() {
		return 0
	}
	return o.Stopped.Sub(o.Started)
}

// Supervisor runs commands under the configured limits.
type Supervisor struct {
	cfg    Config
	slots  *semaphore.Weighted
	logger *zap.Logger
}

// New builds a Supervisor.
func New(cfg Config, logger *zap.Logger) *Supervisor {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	s := &Supervisor{cfg: cfg, logger: logger}
	if cfg.MaxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s
}

// Run executes cmd and blocks until the process has exited and its output
// streams are closed.
func (s *Supervisor) Run(ctx context.Context, cmd Command) (Outcome, error) {
	outcome := Outcome{
		Path:     cmd.Path,
		Args:     append([]string(nil), cmd.Args...),
		ExitCode: -1,
	}
	if s.slots != nil && !cmd.Unmetered {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return outcome, fmt.Errorf("wait for process slot: %w", err)
		}
		defer s.slots.Release(1)
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	} else {
		s.logger.Warn("command has no timeout", zap.String("path", cmd.Path))
	}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(append(os.Environ(), s.cfg.Env...), cmd.Env...)
	c.WaitDelay = s.cfg.KillGrace
	configureProcessGroup(c)
	// killed records that the deadline fired while the process was still
	// running; exec only calls Cancel before the process has exited.
	var killed atomic.Bool
	kill := c.Cancel
	c.Cancel = func() error {
		killed.Store(true)
		return kill()
	}

	stdout := newCappedBuffer(s.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(s.cfg.MaxOutputBytes)
	c.Stdout = stdout
	c.Stderr = stderr

	outcome.Started = time.Now().UTC()
	if err := c.Start(); err != nil {
		outcome.Stopped = time.Now().UTC()
		return outcome, &crawler.SpawnError{Path: cmd.Path, Err: err}
	}
	outcome.PID = c.Process.Pid
	metrics.IncActiveProcesses()
	s.logger.Debug("process started", zap.String("path", cmd.Path), zap.Int("pid", outcome.PID))

	waitErr := c.Wait()
	reapProcessGroup(outcome.PID)
	metrics.DecActiveProcesses()

	outcome.Stopped = time.Now().UTC()
	if c.ProcessState != nil {
		outcome.ExitCode = c.ProcessState.ExitCode()
	}
	outcome.Stdout, outcome.StdoutTruncated = stdout.String(), stdout.Truncated()
	outcome.Stderr, outcome.StderrTruncated = stderr.String(), stderr.Truncated()

	switch {
	case ctx.Err() != nil:
		return outcome, fmt.Errorf("process %d canceled: %w", outcome.PID, ctx.Err())
	case killed.Load() && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return outcome, &crawler.TimeoutError{Timeout: timeout, Err: waitErr}
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		s.logger.Warn("descendant held output open after exit; pipes closed",
			zap.Int("pid", outcome.PID),
			zap.Duration("kill_grace", s.cfg.KillGrace),
		)
		waitErr = nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			// The child ran; any non-exit error here is about our side of the pipes.
			s.logger.Warn("process wait returned error", zap.Int("pid", outcome.PID), zap.Error(waitErr))
		}
	}
	s.logger.Debug("process exited",
		zap.Int("pid", outcome.PID),
		zap.Int("exit_code", outcome.ExitCode),
		zap.Duration("duration", outcome.Duration()),
	)
	return outcome, nil
}
