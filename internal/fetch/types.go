package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxLinks caps the number of links a fetcher reports for one page.
const MaxLinks = 200

// DefaultTimeout bounds navigation, idle waits and selector waits.
const DefaultTimeout = 20 * time.Second

// WaitOptions controls when a page counts as ready.
type WaitOptions struct {
	// Timeout bounds each wait stage. Zero means DefaultTimeout.
	Timeout time.Duration
	// NetworkIdle waits for network quiescence instead of DOMContentLoaded.
	NetworkIdle bool
	// Selector, when set, must appear before the page counts as ready.
	Selector string
}

// ScreenshotOptions controls which captures are taken.
type ScreenshotOptions struct {
	FullPage  bool
	Selectors []string
}

// Request is what the ladder hands to a Fetcher.
type Request struct {
	URL        string
	Wait       WaitOptions
	Screenshot ScreenshotOptions
}

// Result is the normalized output of a fetch.
type Result struct {
	Title    string
	HTML     string
	BodyText string
	// Links are absolute URLs in document order, at most MaxLinks.
	Links []string
	// Screenshots are file paths. The first is the full-page capture; the rest
	// follow the requested selectors that matched an element.
	Screenshots []string
}

// ShotPathFunc maps a screenshot suffix ("full", "selector_0", ...) to the
// file the fetcher should write.
type ShotPathFunc func(suffix string) string

// Fetcher renders a page. Any navigation, timeout or render error is returned
// as a *FailedError.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, shots ShotPathFunc) (Result, error)
}

// ErrFetchFailed matches every *FailedError.
var ErrFetchFailed = errors.New("fetch failed")

// FailedError wraps the underlying cause of a failed fetch.
type FailedError struct {
	URL string
	Err error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

func (e *FailedError) Is(target error) bool { return target == ErrFetchFailed }

// Failed wraps err as a *FailedError unless it already is one.
func Failed(url string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FailedError
	if errors.As(err, &fe) {
		return err
	}
	return &FailedError{URL: url, Err: err}
}

// SelectorSuffix names the screenshot of the i-th requested selector.
func SelectorSuffix(i int) string {
	return fmt.Sprintf("selector_%d", i)
}

// TimeoutOrDefault returns w.Timeout, or DefaultTimeout when unset.
func (w WaitOptions) TimeoutOrDefault() time.Duration {
	if w.Timeout <= 0 {
		return DefaultTimeout
	}
	return w.Timeout
}
