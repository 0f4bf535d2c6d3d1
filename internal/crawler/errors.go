package crawler

import (
	"fmt"
	"time"
)

// ConfigurationError reports that the workspace or the crawl artifacts could
// not be prepared. Op names the failed step.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SpawnError reports that the crawl subprocess could not be started at all.
// No result correlation is attempted after a SpawnError.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the subprocess exceeded its deadline and was killed.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crawl timed out after %s: %v", e.Timeout, e.Err)
	}
	return fmt.Sprintf("crawl timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
