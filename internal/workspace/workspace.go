// Package workspace manages the ephemeral directory tree that crawl artifacts
// live in. Every execution gets its own arena: a freshly created subdirectory
// holding the script, input, and result artifacts under one filename stem.
// Cleanup is a single recursive removal of the arena.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

const (
	defaultPrefix     = "crawl"
	maxAllocAttempts  = 5
	scriptExtension   = ".py"
	resultExtension   = ".json"
	inputExtension    = ".input.json"
	arenaPermissions  = 0o700
	rootPermissions   = 0o750
	artifactFilePerms = 0o600
)

// Config captures the workspace location and naming.
type Config struct {
	// BaseDir is the shared root for all arenas. Defaults to $TMPDIR/crawlrunner.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Prefix starts every arena and artifact name.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// TokenGenerator yields short random tokens for artifact names.
type TokenGenerator interface {
	NewToken() (string, error)
}

// Workspace allocates arenas under a shared base directory.
type Workspace struct {
	baseDir string
	prefix  string
	clock   crawler.Clock
	tokens  TokenGenerator
	logger  *zap.Logger
}

// New builds a Workspace and makes a first attempt at creating the base
// directory. A failure is logged, not returned: Allocate retries it.
func New(cfg Config, clock crawler.Clock, tokens TokenGenerator, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "crawlrunner")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	w := &Workspace{
		baseDir: filepath.Clean(baseDir),
		prefix:  prefix,
		clock:   clock,
		tokens:  tokens,
		logger:  logger,
	}
	if err := w.Ensure(); err != nil {
		logger.Warn("workspace directory not usable yet", zap.String("dir", w.baseDir), zap.Error(err))
	}
	return w
}

// Dir returns the base directory.
func (w *Workspace) Dir() string {
	return w.baseDir
}

// Ensure creates the base directory if needed. It is idempotent.
func (w *Workspace) Ensure() error {
	if err := os.MkdirAll(w.baseDir, rootPermissions); err != nil {
		return &crawler.ConfigurationError{Op: "workspace create base directory", Err: err}
	}
	info, err := os.Stat(w.baseDir)
	if err != nil {
		return &crawler.ConfigurationError{Op: "workspace stat base directory", Err: err}
	}
	if !info.IsDir() {
		return &crawler.ConfigurationError{Op: "workspace stat base directory", Err: fmt.Errorf("%s is not a directory", w.baseDir)}
	}
	return nil
}

// Allocate creates a new arena. Names are {prefix}-{unix millis}-{token}; a
// name that already exists is never reused.
func (w *Workspace) Allocate(ctx context.Context) (*Arena, error) {
	if err := w.Ensure(); err != nil {
		return nil, err
	}
	for range maxAllocAttempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("allocate arena: %w", err)
		}
		stem, err := w.newStem()
		if err != nil {
			return nil, &crawler.ConfigurationError{Op: "workspace name arena", Err: err}
		}
		dir := filepath.Join(w.baseDir, stem)
		if err := os.Mkdir(dir, arenaPermissions); err != nil {
			if errors.Is(err, fs.ErrExist) {
				w.logger.Debug("arena name collision, retrying", zap.String("stem", stem))
				continue
			}
			return nil, &crawler.ConfigurationError{Op: "workspace create arena", Err: err}
		}
		return &Arena{dir: dir, stem: stem}, nil
	}
	return nil, &crawler.ConfigurationError{
		Op:  "create arena",
		Err: fmt.Errorf("no unique name after %d attempts", maxAllocAttempts),
	}
}

// Sweep removes arenas older than maxAge, typically left behind by a crashed
// process. It returns the number of arenas removed.
func (w *Workspace) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace: %w", err)
	}
	cutoff := w.clock.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), w.prefix+"-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.baseDir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (w *Workspace) newStem() (string, error) {
	token, err := w.tokens.NewToken()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", w.prefix, w.clock.Now().UnixMilli(), token), nil
}

// Arena is one execution's private directory. All artifacts share its stem.
type Arena struct {
	dir  string
	stem string
}

// Dir returns the arena directory.
func (a *Arena) Dir() string { return a.dir }

// Stem returns the filename stem shared by every artifact in the arena.
func (a *Arena) Stem() string { return a.stem }

// ScriptPath is where the synthesized script is written.
func (a *Arena) ScriptPath() string { return filepath.Join(a.dir, a.stem+scriptExtension) }

// ResultPath is where the script writes its result.
func (a *Arena) ResultPath() string { return filepath.Join(a.dir, a.stem+resultExtension) }

// InputPath is where the serialized request parameters are written.
func (a *Arena) InputPath() string { return filepath.Join(a.dir, a.stem+inputExtension) }

// WriteScript stores the script artifact.
func (a *Arena) WriteScript(source []byte) error {
	if err := os.WriteFile(a.ScriptPath(), source, artifactFilePerms); err != nil {
		return &crawler.ConfigurationError{Op: "write script artifact", Err: err}
	}
	return nil
}

// WriteInput stores the parameter artifact.
func (a *Arena) WriteInput(input []byte) error {
	if err := os.WriteFile(a.InputPath(), input, artifactFilePerms); err != nil {
		return &crawler.ConfigurationError{Op: "write input artifact", Err: err}
	}
	return nil
}

// Remove deletes the arena and everything in it.
func (a *Arena) Remove() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("remove arena %s: %w", a.dir, err)
	}
	return nil
}
