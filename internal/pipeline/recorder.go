package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/metrics"
)

const (
	resultContentType  = "application/json"
	defaultSinkTimeout = 10 * time.Second
)

// Hasher digests result payloads.
type Hasher interface {
	Hash(data []byte) string
}

// RecorderConfig controls where results are archived and announced.
type RecorderConfig struct {
	// ArchivePrefix is prepended to archive object paths.
	ArchivePrefix string
	// Topic receives completion notifications. Empty disables publishing.
	Topic string
	// Timeout bounds all sink calls for one execution together.
	Timeout time.Duration
}

// Recorder fans a finished execution out to the optional sinks. Every sink
// may be nil; failures are logged and counted, never returned.
type Recorder struct {
	cfg       RecorderConfig
	hasher    Hasher
	blobs     crawler.BlobStore
	runs      crawler.RunStore
	publisher crawler.Publisher
	logger    *zap.Logger
}

// NewRecorder builds a Recorder.
func NewRecorder(
	cfg RecorderConfig,
	hasher Hasher,
	blobs crawler.BlobStore,
	runs crawler.RunStore,
	publisher crawler.Publisher,
	logger *zap.Logger,
) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSinkTimeout
	}
	return &Recorder{
		cfg:       cfg,
		hasher:    hasher,
		blobs:     blobs,
		runs:      runs,
		publisher: publisher,
		logger:    logger,
	}
}

// Record archives the raw result, persists a run row and publishes a
// notification. It returns the record that was (or would have been) stored.
// A sink that has not answered by the configured timeout is abandoned.
func (r *Recorder) Record(ctx context.Context, e *Execution) *crawler.RunRecord {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	log := r.logger.With(zap.String("run_id", e.RunID), zap.String("url", e.Params.URL))
	record := crawler.RunRecord{
		ID:          e.RunID,
		URL:         e.Params.URL,
		Success:     e.Result.Parsed.Success,
		Fallback:    e.Result.Fallback,
		ExitCode:    e.Process.ExitCode,
		Error:       e.Result.Parsed.Error,
		StartedAt:   e.Started,
		FinishedAt:  e.Finished,
		DurationMs:  e.Duration().Milliseconds(),
		Parameters:  e.Params,
		ResultBytes: len(e.Result.Raw),
	}
	if r.hasher != nil {
		record.Digest = r.hasher.Hash(e.Result.Raw)
	}

	if r.blobs != nil {
		path := r.archivePath(e.RunID, e.Finished)
		uri, err := r.blobs.PutObject(ctx, path, resultContentType, bytes.NewReader(e.Result.Raw))
		if err != nil {
			metrics.ObserveSinkError("archive")
			log.Warn("failed to archive crawl result", zap.String("path", path), zap.Error(err))
		} else {
			record.ArchiveURI = uri
		}
	}

	if r.runs != nil {
		if err := r.runs.RecordRun(ctx, record); err != nil {
			metrics.ObserveSinkError("run_store")
			log.Warn("failed to record crawl run", zap.Error(err))
		}
	}

	if r.publisher != nil && r.cfg.Topic != "" {
		note := crawler.RunNotification{
			RunID:      record.ID,
			URL:        record.URL,
			Success:    record.Success,
			Fallback:   record.Fallback,
			ArchiveURI: record.ArchiveURI,
			Digest:     record.Digest,
			FinishedAt: record.FinishedAt.UTC().Format(time.RFC3339),
		}
		if _, err := r.publisher.Publish(ctx, r.cfg.Topic, note); err != nil {
			metrics.ObserveSinkError("publish")
			log.Warn("failed to publish crawl notification", zap.Error(err))
		} else {
			log.Info("crawl published",
				zap.String("archive_uri", record.ArchiveURI),
				zap.String("digest", record.Digest),
			)
		}
	}
	return &record
}

func (r *Recorder) archivePath(runID string, at time.Time) string {
	day := at.UTC().Format("2006/01/02")
	prefix := strings.Trim(r.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", day, runID)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, day, runID)
}
