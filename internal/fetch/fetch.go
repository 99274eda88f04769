package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// Client fetches pages over plain HTTP without running JavaScript. It provides
// timeouts and limited retry on transient errors, and it implements Fetcher
// without screenshots.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request. Zero falls back to the request's
	// wait timeout.
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// CheckRedirect, when set, vets every redirect target, e.g. with the
	// safety gate.
	CheckRedirect func(req *http.Request, via []*http.Request) error
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int
	// MaxBodyBytes caps the body size. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// internal limiter initialized on first use when MaxConcurrent > 0
	limiter     chan struct{}
	limiterOnce sync.Once
}

type page struct {
	body        []byte
	contentType string
	finalURL    *url.URL
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	if e.code >= 500 {
		return fmt.Sprintf("server error: %d", e.code)
	}
	return fmt.Sprintf("unexpected status: %d", e.code)
}

func (c *Client) getHTTPClient(timeout time.Duration) *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: timeout, CheckRedirect: c.checkRedirectFunc()}
}

// Fetch implements Fetcher. Screenshots are never produced.
func (c *Client) Fetch(ctx context.Context, req Request, _ ShotPathFunc) (Result, error) {
	timeout := c.PerRequestTimeout
	if timeout <= 0 {
		timeout = req.Wait.TimeoutOrDefault()
	}
	p, err := c.get(ctx, req.URL, timeout)
	if err != nil {
		return Result{}, Failed(req.URL, err)
	}
	res, err := parsePage(p)
	if err != nil {
		return Result{}, Failed(req.URL, err)
	}
	if sel := strings.TrimSpace(req.Wait.Selector); sel != "" {
		doc, _ := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
		if doc == nil || doc.Find(sel).Length() == 0 {
			return Result{}, Failed(req.URL, fmt.Errorf("selector %q not found", sel))
		}
	}
	return res, nil
}

// get issues a GET with bounded retry for transient errors.
func (c *Client) get(ctx context.Context, url string, timeout time.Duration) (page, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		p, err := c.tryOnce(ctx, url, timeout)
		if err == nil {
			return p, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return page{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return page{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return page{}, lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, timeout time.Duration) (page, error) {
	// Concurrency gate per client instance
	c.acquire()
	defer c.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return page{}, fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return page{}, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.getHTTPClient(timeout).Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page{}, &statusError{code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return page{}, fmt.Errorf("unsupported content type: %s", contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return page{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return page{}, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return page{body: b, contentType: contentType, finalURL: resp.Request.URL}, nil
}

func isTransient(err error) bool {
	// Treat HTTP 5xx and context deadline as transient.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		if c.CheckRedirect != nil {
			return c.CheckRedirect(req, via)
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// allow text/html variants and application/xhtml+xml
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
		// should not happen, but avoid blocking
	}
}
