package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrURLRequired is returned when a request does not name a URL.
var ErrURLRequired = errors.New("URL is required")

// Defaults holds the configured values applied to omitted request fields.
type Defaults struct {
	MaxPages              int
	Depth                 int
	Strategy              Strategy
	Query                 string
	CaptureNetworkTraffic bool
	CaptureConsole        bool
	CaptureHTML           bool
	CaptureScreenshots    bool
	WaitTime              int
}

// Resolve applies d to req and validates the result.
func (d Defaults) Resolve(req CrawlRequest) (CrawlParameters, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return CrawlParameters{}, ErrURLRequired
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return CrawlParameters{}, fmt.Errorf("url must be an absolute http(s) URL")
	}

	params := CrawlParameters{
		URL:                   rawURL,
		MaxPages:              valueOrDefault(req.MaxPages, d.MaxPages),
		Depth:                 valueOrDefault(req.Depth, d.Depth),
		Strategy:              valueOrDefault(req.Strategy, d.Strategy),
		Query:                 valueOrDefault(req.Query, d.Query),
		CaptureNetworkTraffic: valueOrDefault(req.CaptureNetworkTraffic, d.CaptureNetworkTraffic),
		CaptureConsole:        valueOrDefault(req.CaptureConsole, d.CaptureConsole),
		CaptureHTML:           valueOrDefault(req.CaptureHTML, d.CaptureHTML),
		CaptureScreenshots:    valueOrDefault(req.CaptureScreenshots, d.CaptureScreenshots),
		WaitTime:              valueOrDefault(req.WaitTime, d.WaitTime),
	}
	if params.Strategy == "" {
		params.Strategy = StrategyBFS
	}
	if err := params.Validate(); err != nil {
		return CrawlParameters{}, err
	}
	return params, nil
}

// Validate enforces the documented bounds on resolved parameters.
func (p CrawlParameters) Validate() error {
	if p.URL == "" {
		return ErrURLRequired
	}
	if p.MaxPages < 1 {
		return fmt.Errorf("maxPages must be >= 1")
	}
	if p.Depth < 0 {
		return fmt.Errorf("depth must be >= 0")
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	if p.WaitTime < 0 {
		return fmt.Errorf("waitTime must be >= 0")
	}
	return nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
