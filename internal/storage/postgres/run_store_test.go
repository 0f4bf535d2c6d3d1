package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

func sampleRecord() crawler.RunRecord {
	started := time.Unix(1700000000, 0).UTC()
	return crawler.RunRecord{
		ID:          "0190c1d2-0000-7000-8000-000000000001",
		URL:         "https://example.com",
		Success:     true,
		ExitCode:    0,
		Digest:      "sha256:abc",
		ArchiveURI:  "gs://bucket/results/2023/11/14/run.json",
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
		DurationMs:  1500,
		ResultBytes: 128,
		Parameters: crawler.CrawlParameters{
			URL:      "https://example.com",
			MaxPages: 1,
			Strategy: crawler.StrategyBFS,
			WaitTime: 2000,
		},
	}
}

func TestRecordRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	paramsJSON, err := json.Marshal(rec.Parameters)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(
			rec.ID,
			rec.URL,
			rec.Success,
			rec.Fallback,
			rec.ExitCode,
			rec.Error,
			rec.Digest,
			rec.ArchiveURI,
			rec.ResultBytes,
			paramsJSON,
			rec.StartedAt,
			rec.FinishedAt,
			rec.DurationMs,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs_v2")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO runs_v2").WillReturnError(errors.New("connection reset"))

	err = store.RecordRun(context.Background(), sampleRecord())
	require.ErrorContains(t, err, "insert crawl run")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.RecordRun(context.Background(), crawler.RunRecord{}))
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.ErrorContains(t, err, "db.dsn is required")
}
