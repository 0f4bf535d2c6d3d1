// Package correlator turns a finished subprocess back into a CrawlResult.
//
// A well-formed result artifact is returned byte for byte. Anything else
// (missing file, truncated JSON, wrong shape) becomes a synthesized failure
// result carrying the process exit code and captured output. Callers always
// get a structurally valid CrawlResult and never an I/O error.
package correlator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/supervisor"
)

const defaultMaxResultBytes = 64 << 20

// Result is a correlated crawl outcome.
type Result struct {
	// Raw is the JSON returned to the caller: the artifact's bytes, or the
	// marshaled fallback.
	Raw json.RawMessage
	// Parsed is Raw decoded. For artifacts with optional fields the engine
	// shaped differently, only the required fields are guaranteed.
	Parsed crawler.CrawlResult
	// Fallback is true when Raw was synthesized rather than read.
	Fallback bool
	// Reason explains why a fallback was synthesized.
	Reason string
}

// Correlator reads result artifacts.
type Correlator struct {
	maxBytes int64
	logger   *zap.Logger
}

// New builds a Correlator. maxBytes caps how much of a result file is read;
// zero selects a 64 MiB default.
func New(maxBytes int64, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxResultBytes
	}
	return &Correlator{maxBytes: maxBytes, logger: logger}
}

// shape lists the fields a result must carry. Pointers detect absence.
type shape struct {
	Success  *bool   `json:"success"`
	URL      *string `json:"url"`
	Markdown *string `json:"markdown"`
	Text     *string `json:"text"`
}

// Correlate reads the result artifact at path for a crawl of url.
func (c *Correlator) Correlate(path, url string, outcome supervisor.Outcome) Result {
	data, err := c.read(path)
	if err != nil {
		return c.fallback(url, outcome, err.Error())
	}
	parsed, err := decode(data)
	if err != nil {
		return c.fallback(url, outcome, err.Error())
	}
	return Result{Raw: json.RawMessage(data), Parsed: parsed}
}

func (c *Correlator) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("result artifact missing")
		}
		return nil, fmt.Errorf("open result artifact: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			c.logger.Debug("close result artifact", zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(io.LimitReader(f, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read result artifact: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("result artifact exceeds %d bytes", c.maxBytes)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("result artifact empty")
	}
	return data, nil
}

func decode(data []byte) (crawler.CrawlResult, error) {
	var s shape
	if err := json.Unmarshal(data, &s); err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("result artifact malformed: %w", err)
	}
	switch {
	case s.Success == nil:
		return crawler.CrawlResult{}, errors.New("result artifact missing success")
	case s.URL == nil:
		return crawler.CrawlResult{}, errors.New("result artifact missing url")
	case s.Markdown == nil:
		return crawler.CrawlResult{}, errors.New("result artifact missing markdown")
	case s.Text == nil:
		return crawler.CrawlResult{}, errors.New("result artifact missing text")
	}

	var full crawler.CrawlResult
	if err := json.Unmarshal(data, &full); err != nil {
		full = crawler.CrawlResult{Success: *s.Success, URL: *s.URL, Markdown: *s.Markdown, Text: *s.Text}
	}
	return full, nil
}

// Fallback synthesizes the failure result for a run that produced nothing usable.
func Fallback(url string, outcome supervisor.Outcome, reason string) Result {
	msg := fmt.Sprintf("crawl produced no usable result: %s (exit code %d)", reason, outcome.ExitCode)
	exitCode := outcome.ExitCode
	res := crawler.CrawlResult{
		Success:  false,
		URL:      url,
		Markdown: crawler.FailureMarkdown(msg),
		Text:     crawler.FailureText(msg),
		Media:    crawler.Media{Tables: []crawler.Table{}},
		Error:    msg,
		ExitCode: &exitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
	}
	raw, err := json.Marshal(res)
	if err != nil {
		// CrawlResult only holds marshalable fields; keep a minimal payload regardless.
		raw, _ = json.Marshal(crawler.ErrorResponse{Success: false, Error: msg})
	}
	return Result{Raw: raw, Parsed: res, Fallback: true, Reason: reason}
}

func (c *Correlator) fallback(url string, outcome supervisor.Outcome, reason string) Result {
	c.logger.Warn("synthesizing fallback result",
		zap.String("url", url),
		zap.String("reason", reason),
		zap.Int("exit_code", outcome.ExitCode),
	)
	return Fallback(url, outcome, reason)
}
