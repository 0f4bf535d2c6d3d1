// Package storage selects the archive backend for crawl results.
package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/storage/gcs"
	"github.com/JakeFAU/crawlrunner/internal/storage/local"
	"github.com/JakeFAU/crawlrunner/internal/storage/memory"
)

// Supported providers.
const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
)

// Config selects and configures an archive backend.
type Config struct {
	Provider  string
	LocalDir  string
	GCSBucket string
}

// NewBlobStore builds the configured backend. It returns a nil store for
// ProviderNone, which disables archiving.
func NewBlobStore(ctx context.Context, cfg Config, logger *zap.Logger) (crawler.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderMemory:
		return memory.NewBlobStore(), nil
	case ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return store, nil
	case ProviderGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket}, logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}
