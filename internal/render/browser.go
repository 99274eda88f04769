package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/hal/internal/fetch"
)

// networkIdleQuiet is how long the page must go without requests to count as idle.
const networkIdleQuiet = 500 * time.Millisecond

const bodyTextJS = `() => document.body ? document.body.innerText : ''`

const linksJS = `() => Array.from(document.querySelectorAll('a[href]')).map(e => e.href)`

// Browser renders pages in headless Chrome. One Chrome process is started
// lazily and shared; every Fetch runs in its own incognito context.
type Browser struct {
	// ControlURL connects to an already running DevTools endpoint instead of
	// launching a local browser.
	ControlURL string
	// Bin overrides the Chrome binary used by the launcher.
	Bin string
	// Headful shows the browser window.
	Headful   bool
	UserAgent string
	// WriteFile stores a capture at a path from the ShotPathFunc; nil writes
	// directly with rod's utils.OutputFile.
	WriteFile func(path string, png []byte) error

	mu      sync.Mutex
	browser *rod.Browser
	proc    *launcher.Launcher
}

// Fetch implements fetch.Fetcher.
func (b *Browser) Fetch(ctx context.Context, req fetch.Request, shots fetch.ShotPathFunc) (fetch.Result, error) {
	res, err := b.fetch(ctx, req, shots)
	if err != nil {
		return fetch.Result{}, fetch.Failed(req.URL, err)
	}
	return res, nil
}

func (b *Browser) fetch(ctx context.Context, req fetch.Request, shots fetch.ShotPathFunc) (fetch.Result, error) {
	browser, err := b.connect()
	if err != nil {
		return fetch.Result{}, err
	}
	incognito, err := browser.Incognito()
	if err != nil {
		return fetch.Result{}, fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	timeout := req.Wait.TimeoutOrDefault()
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fetch.Result{}, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx).Timeout(timeout)
	defer func() { _ = page.CancelTimeout().Close() }()

	if b.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.UserAgent}); err != nil {
			log.Debug().Err(err).Msg("set user agent")
		}
	}

	if err := navigate(page, req); err != nil {
		return fetch.Result{}, err
	}
	if sel := strings.TrimSpace(req.Wait.Selector); sel != "" {
		if _, err := page.Element(sel); err != nil {
			return fetch.Result{}, fmt.Errorf("wait for selector %q: %w", sel, err)
		}
	}

	info, err := page.Info()
	if err != nil {
		return fetch.Result{}, fmt.Errorf("page info: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return fetch.Result{}, fmt.Errorf("page html: %w", err)
	}
	text, err := page.Eval(bodyTextJS)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("body text: %w", err)
	}
	rawLinks, err := page.Eval(linksJS)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("links: %w", err)
	}
	hrefs := make([]string, 0, len(rawLinks.Value.Arr()))
	for _, v := range rawLinks.Value.Arr() {
		hrefs = append(hrefs, v.Str())
	}

	paths, err := capture(page, req.Screenshot, shots, b.writer())
	if err != nil {
		return fetch.Result{}, err
	}

	return fetch.Result{
		Title:       info.Title,
		HTML:        html,
		BodyText:    text.Value.Str(),
		Links:       CapLinks(hrefs),
		Screenshots: paths,
	}, nil
}

// navigate loads the URL and blocks until network idle or DOM content loaded,
// per req.Wait.NetworkIdle.
func navigate(page *rod.Page, req fetch.Request) error {
	var wait func()
	if req.Wait.NetworkIdle {
		wait = page.WaitRequestIdle(networkIdleQuiet, nil, nil, nil)
	} else {
		wait = page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	}
	if err := page.Navigate(req.URL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	wait()
	// The wait helpers swallow timeouts; surface them here.
	if err := page.GetContext().Err(); err != nil {
		return fmt.Errorf("wait for page: %w", err)
	}
	return nil
}

// capture takes the full capture first, then one element capture per selector
// that matches. Unmatched selectors are skipped.
func capture(page *rod.Page, opts fetch.ScreenshotOptions, shots fetch.ShotPathFunc, write func(string, []byte) error) ([]string, error) {
	if shots == nil {
		return nil, nil
	}
	var paths []string
	full, err := page.Screenshot(opts.FullPage, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	p := shots("full")
	if err := write(p, full); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}
	paths = append(paths, p)

	for i, sel := range opts.Selectors {
		has, el, err := page.Has(sel)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", sel, err)
		}
		if !has {
			continue
		}
		img, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, fmt.Errorf("element screenshot %q: %w", sel, err)
		}
		p := shots(fetch.SelectorSuffix(i))
		if err := write(p, img); err != nil {
			return nil, fmt.Errorf("write screenshot: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (b *Browser) writer() func(string, []byte) error {
	if b.WriteFile != nil {
		return b.WriteFile
	}
	return func(p string, data []byte) error { return utils.OutputFile(p, data) }
}

// connect returns the shared browser, starting it on first use.
func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(!b.Headful)
		if b.Bin != "" {
			l = l.Bin(b.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		b.proc = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		b.killLocked()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	log.Debug().Str("control_url", controlURL).Bool("launched", b.proc != nil).Msg("browser connected")
	b.browser = browser
	return browser, nil
}

// Close shuts a launched browser down. A remote browser is left running.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil && b.proc != nil {
		err = b.browser.Close()
	}
	b.browser = nil
	b.killLocked()
	return err
}

func (b *Browser) killLocked() {
	if b.proc != nil {
		b.proc.Kill()
		b.proc = nil
	}
}

// CapLinks drops empty hrefs and keeps at most fetch.MaxLinks in order.
func CapLinks(hrefs []string) []string {
	out := make([]string, 0, min(len(hrefs), fetch.MaxLinks))
	for _, h := range hrefs {
		if strings.TrimSpace(h) == "" {
			continue
		}
		out = append(out, h)
		if len(out) == fetch.MaxLinks {
			break
		}
	}
	return out
}

var _ fetch.Fetcher = (*Browser)(nil)
