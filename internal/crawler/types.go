package crawler

import (
	"time"
)

// Strategy selects how the engine walks links beyond the start URL.
type Strategy string

// Supported deep crawl strategies.
const (
	StrategyBFS       Strategy = "bfs"
	StrategyDFS       Strategy = "dfs"
	StrategyBestFirst Strategy = "best_first"
)

// Valid reports whether s names a strategy the engine understands.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBFS, StrategyDFS, StrategyBestFirst:
		return true
	default:
		return false
	}
}

// CrawlRequest is the body accepted by POST /api/crawl. Optional fields are
// pointers so an absent value can be told apart from an explicit zero.
type CrawlRequest struct {
	URL                   string    `json:"url"`
	MaxPages              *int      `json:"maxPages,omitempty"`
	Depth                 *int      `json:"depth,omitempty"`
	Strategy              *Strategy `json:"strategy,omitempty"`
	Query                 *string   `json:"query,omitempty"`
	CaptureNetworkTraffic *bool     `json:"captureNetworkTraffic,omitempty"`
	CaptureConsole        *bool     `json:"captureConsole,omitempty"`
	CaptureHTML           *bool     `json:"captureHTML,omitempty"`
	CaptureScreenshots    *bool     `json:"captureScreenshots,omitempty"`
	WaitTime              *int      `json:"waitTime,omitempty"`
}

// CrawlParameters is a CrawlRequest with every default resolved.
type CrawlParameters struct {
	URL                   string   `json:"url"`
	MaxPages              int      `json:"maxPages"`
	Depth                 int      `json:"depth"`
	Strategy              Strategy `json:"strategy"`
	Query                 string   `json:"query"`
	CaptureNetworkTraffic bool     `json:"captureNetworkTraffic"`
	CaptureConsole        bool     `json:"captureConsole"`
	CaptureHTML           bool     `json:"captureHTML"`
	CaptureScreenshots    bool     `json:"captureScreenshots"`
	WaitTime              int      `json:"waitTime"`
}

// WaitDuration converts the millisecond wait time into a time.Duration.
func (p CrawlParameters) WaitDuration() time.Duration {
	return time.Duration(p.WaitTime) * time.Millisecond
}

// Table is one table extracted from a crawled page. Cells are normalized to
// strings by the engine script.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Caption string     `json:"caption,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

// Media groups non-text content extracted from a page.
type Media struct {
	Tables []Table `json:"tables"`
}

// PageSummary describes one page visited during a deep crawl.
type PageSummary struct {
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	Success  bool   `json:"success"`
	Markdown string `json:"markdown"`
	Error    string `json:"error,omitempty"`
}

// CrawlResult is the canonical response of a crawl. Markdown and Text are
// always set, carrying a placeholder that embeds Error when Success is false.
type CrawlResult struct {
	Success         bool             `json:"success"`
	URL             string           `json:"url"`
	Markdown        string           `json:"markdown"`
	Text            string           `json:"text"`
	Media           Media            `json:"media"`
	Error           string           `json:"error,omitempty"`
	Traceback       string           `json:"traceback,omitempty"`
	HTML            string           `json:"html,omitempty"`
	NetworkRequests []map[string]any `json:"networkRequests,omitempty"`
	ConsoleMessages []map[string]any `json:"consoleMessages,omitempty"`
	Screenshots     []string         `json:"screenshots,omitempty"`
	Pages           []PageSummary    `json:"pages,omitempty"`

	// Diagnostics attached only to results synthesized by the correlator.
	ExitCode *int   `json:"exitCode,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// ErrorResponse is returned for requests that never produced a CrawlResult.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FailureMarkdown renders the markdown placeholder used for failed crawls.
// The engine script uses the same wording.
func FailureMarkdown(msg string) string {
	return "# Crawl failed\n\n" + msg
}

// FailureText renders the plain text placeholder used for failed crawls.
func FailureText(msg string) string {
	return "Crawl failed: " + msg
}

// RunRecord is the row persisted for every completed pipeline execution.
type RunRecord struct {
	ID          string
	URL         string
	Success     bool
	Fallback    bool
	ExitCode    int
	Error       string
	Digest      string
	ArchiveURI  string
	StartedAt   time.Time
	FinishedAt  time.Time
	DurationMs  int64
	Parameters  CrawlParameters
	ResultBytes int
}

// RunNotification is the compact message published after each run.
type RunNotification struct {
	RunID      string `json:"run_id"`
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	Fallback   bool   `json:"fallback"`
	ArchiveURI string `json:"archive_uri,omitempty"`
	Digest     string `json:"digest"`
	FinishedAt string `json:"finished_at"`
}
