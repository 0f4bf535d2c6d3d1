package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if runsTotal == nil || runDurationSeconds == nil || stageDurationSeconds == nil ||
		activeProcesses == nil || cleanupFailuresTotal == nil || healthProbesTotal == nil ||
		rateLimitedTotal == nil || sinkErrorsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRun(t *testing.T) {
	Init()

	before := testutil.ToFloat64(runsTotal.WithLabelValues("runs.example", OutcomeFallback))
	ObserveRun("https://runs.example/a", OutcomeFallback, 2*time.Second)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("runs.example", OutcomeFallback)); got != before+1 {
		t.Errorf("runs counter = %f; want %f", got, before+1)
	}
	if n := testutil.CollectAndCount(runDurationSeconds); n == 0 {
		t.Error("expected run duration to be observed")
	}
}

func TestActiveProcessesGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(activeProcesses)
	IncActiveProcesses()
	IncActiveProcesses()
	DecActiveProcesses()
	if got := testutil.ToFloat64(activeProcesses); got != before+1 {
		t.Errorf("active processes = %f; want %f", got, before+1)
	}
	DecActiveProcesses()
}

func TestCounters(t *testing.T) {
	Init()

	cleanup := testutil.ToFloat64(cleanupFailuresTotal)
	ObserveCleanupFailure()
	if got := testutil.ToFloat64(cleanupFailuresTotal); got != cleanup+1 {
		t.Errorf("cleanup failures = %f; want %f", got, cleanup+1)
	}

	unhealthy := testutil.ToFloat64(healthProbesTotal.WithLabelValues("unhealthy"))
	ObserveHealthProbe(false)
	if got := testutil.ToFloat64(healthProbesTotal.WithLabelValues("unhealthy")); got != unhealthy+1 {
		t.Errorf("unhealthy probes = %f; want %f", got, unhealthy+1)
	}

	sink := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("archive"))
	ObserveSinkError("archive")
	if got := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("archive")); got != sink+1 {
		t.Errorf("sink errors = %f; want %f", got, sink+1)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
