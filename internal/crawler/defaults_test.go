package crawler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestResolveAppliesDefaults(t *testing.T) {
	d := Defaults{MaxPages: 1, Depth: 0, Strategy: StrategyBFS, WaitTime: 2000, CaptureHTML: true}

	got, err := d.Resolve(CrawlRequest{URL: "  https://example.com/a  "})
	require.NoError(t, err)
	require.Equal(t, CrawlParameters{
		URL:         "https://example.com/a",
		MaxPages:    1,
		Depth:       0,
		Strategy:    StrategyBFS,
		CaptureHTML: true,
		WaitTime:    2000,
	}, got)
	require.Equal(t, 2*time.Second, got.WaitDuration())
}

func TestResolveKeepsExplicitZeroes(t *testing.T) {
	d := Defaults{MaxPages: 5, Depth: 3, Strategy: StrategyDFS, WaitTime: 2000, CaptureHTML: true}

	got, err := d.Resolve(CrawlRequest{
		URL:         "https://example.com",
		Depth:       ptr(0),
		WaitTime:    ptr(0),
		CaptureHTML: ptr(false),
		Strategy:    ptr(StrategyBestFirst),
		Query:       ptr("prices"),
	})
	require.NoError(t, err)
	require.Equal(t, 5, got.MaxPages)
	require.Equal(t, 0, got.Depth)
	require.Equal(t, 0, got.WaitTime)
	require.False(t, got.CaptureHTML)
	require.Equal(t, StrategyBestFirst, got.Strategy)
	require.Equal(t, "prices", got.Query)
}

func TestResolveEmptyStrategyFallsBackToBFS(t *testing.T) {
	got, err := Defaults{MaxPages: 1}.Resolve(CrawlRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, StrategyBFS, got.Strategy)
}

func TestResolveRejects(t *testing.T) {
	d := Defaults{MaxPages: 1, Strategy: StrategyBFS}
	cases := map[string]struct {
		req  CrawlRequest
		want string
	}{
		"missing url":    {req: CrawlRequest{}, want: "URL is required"},
		"ftp url":        {req: CrawlRequest{URL: "ftp://example.com"}, want: "absolute http(s) URL"},
		"no host":        {req: CrawlRequest{URL: "https://"}, want: "absolute http(s) URL"},
		"zero pages":     {req: CrawlRequest{URL: "https://example.com", MaxPages: ptr(0)}, want: "maxPages"},
		"negative depth": {req: CrawlRequest{URL: "https://example.com", Depth: ptr(-1)}, want: "depth"},
		"bad strategy":   {req: CrawlRequest{URL: "https://example.com", Strategy: ptr(Strategy("random"))}, want: "unknown strategy"},
		"negative wait":  {req: CrawlRequest{URL: "https://example.com", WaitTime: ptr(-5)}, want: "waitTime"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Resolve(tc.req)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestResolveMissingURLIsSentinel(t *testing.T) {
	_, err := Defaults{}.Resolve(CrawlRequest{URL: "   "})
	require.ErrorIs(t, err, ErrURLRequired)
}

func TestStrategyValid(t *testing.T) {
	require.True(t, StrategyBFS.Valid())
	require.True(t, StrategyDFS.Valid())
	require.True(t, StrategyBestFirst.Valid())
	require.False(t, Strategy("BFS").Valid())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	require.ErrorIs(t, &ConfigurationError{Op: "create base dir", Err: cause}, cause)
	require.ErrorIs(t, &SpawnError{Path: "python3", Err: cause}, cause)
	require.ErrorIs(t, &TimeoutError{Timeout: time.Second, Err: cause}, cause)
	require.Equal(t, "crawl timed out after 2s", (&TimeoutError{Timeout: 2 * time.Second}).Error())
	require.Equal(t, "spawn python3: boom", (&SpawnError{Path: "python3", Err: cause}).Error())
}

func TestFailurePlaceholders(t *testing.T) {
	require.Equal(t, "# Crawl failed\n\nDNS", FailureMarkdown("DNS"))
	require.Equal(t, "Crawl failed: DNS", FailureText("DNS"))
}
