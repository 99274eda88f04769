package ladder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hyperifyio/hal/internal/cache"
	"github.com/hyperifyio/hal/internal/extract"
	"github.com/hyperifyio/hal/internal/fetch"
	"github.com/hyperifyio/hal/internal/vision"
)

// Degradation warnings and confidence floors.
const (
	WarnVisionUnavailable = "Vision requested but no vision credential configured; returned DOM extraction"
	warnVisionFailedFmt   = "Vision extraction failed: %s"

	DefaultVisionConfidence = 0.5
	ConfidenceFloor         = 0.2
	unavailablePenalty      = 0.1
	failurePenalty          = 0.2
)

// Validator screens a URL before any network access.
type Validator interface {
	Validate(ctx context.Context, rawURL string) error
}

// VisionExtractor reads page text from screenshots.
type VisionExtractor interface {
	Available() bool
	Extract(ctx context.Context, paths []string) (vision.Result, error)
}

// Recorder persists per-request artifacts. *cache.Store implements it.
type Recorder interface {
	ScreenshotPath(key, suffix string) string
	SaveHTML(ctx context.Context, key string, html string) (string, error)
	SaveExtraction(ctx context.Context, key string, payload any) (string, error)
}

// Config carries ladder-level defaults.
type Config struct {
	// DefaultTimeout replaces a request wait timeout of zero.
	DefaultTimeout time.Duration
}

// Deps are the collaborators of a Ladder. Gate, Fetcher and Store are required.
type Deps struct {
	Gate    Validator
	Fetcher fetch.Fetcher
	// DOM defaults to extract.DOM with go-readability.
	DOM extract.Extractor
	// Vision may be nil; escalation then degrades with a warning.
	Vision VisionExtractor
	Store  Recorder
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Ladder runs safety check, fetch, DOM extraction and optional vision
// extraction for one URL at a time. It holds no per-request state and is safe
// for concurrent use.
type Ladder struct {
	cfg     Config
	gate    Validator
	fetcher fetch.Fetcher
	dom     extract.Extractor
	vision  VisionExtractor
	store   Recorder
	now     func() time.Time
	log     zerolog.Logger
}

// New validates deps and fills optional ones.
func New(cfg Config, deps Deps) (*Ladder, error) {
	if deps.Gate == nil {
		return nil, errors.New("ladder: safety gate is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("ladder: fetcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("ladder: cache store is required")
	}
	l := &Ladder{
		cfg:     cfg,
		gate:    deps.Gate,
		fetcher: deps.Fetcher,
		dom:     deps.DOM,
		vision:  deps.Vision,
		store:   deps.Store,
		now:     deps.Now,
		log:     zerolog.Nop(),
	}
	if l.dom == nil {
		l.dom = extract.DOM{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if deps.Logger != nil {
		l.log = *deps.Logger
	}
	if l.cfg.DefaultTimeout <= 0 {
		l.cfg.DefaultTimeout = fetch.DefaultTimeout
	}
	return l, nil
}

// requestID reuses the id the HTTP layer assigned to ctx, or mints one for
// callers outside a request.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Browse runs the ladder for req. Safety rejections (safety.ErrRejected),
// fetch failures (fetch.ErrFetchFailed) and invalid modes (ErrInvalidMode) are
// returned as errors; every vision problem becomes a warning on the response.
func (l *Ladder) Browse(ctx context.Context, req Request) (Response, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Response{}, err
	}
	req.Mode = mode
	if req.Wait.TimeoutMS <= 0 {
		req.Wait.TimeoutMS = int(l.cfg.DefaultTimeout / time.Millisecond)
	}

	start := l.now()
	fetchedAt := start.UTC()
	log := l.log.With().
		Str("request_id", requestID(ctx)).
		Str("url", req.URL).
		Str("mode", string(mode)).
		Logger()

	if err := l.gate.Validate(ctx, req.URL); err != nil {
		log.Warn().Err(err).Str("stage", "safety").Msg("url rejected")
		return Response{}, err
	}

	key := cache.Key(req.URL, fetchedAt, string(mode))
	page, err := l.fetcher.Fetch(ctx, req.fetchRequest(), func(suffix string) string {
		return l.store.ScreenshotPath(key, suffix)
	})
	if err != nil {
		if !errors.Is(err, fetch.ErrFetchFailed) {
			err = fetch.Failed(req.URL, err)
		}
		log.Warn().Err(err).Str("stage", "fetch").Msg("fetch failed")
		return Response{}, err
	}
	if _, err := l.store.SaveHTML(ctx, key, page.HTML); err != nil {
		log.Warn().Err(err).Str("stage", "cache").Msg("html snapshot not saved")
	}

	pageURL, _ := url.Parse(req.URL)
	dom := l.dom.Extract(page.HTML, pageURL, page.Title, page.BodyText)
	decision := Decide(mode, req.VisualExtraction, extract.NeedsVision(dom))
	log.Debug().
		Str("stage", "dom").
		Float64("confidence", dom.Confidence).
		Str("use", decision.Use.String()).
		Str("reason", string(decision.Reason)).
		Msg("dom extracted")

	out, citeShots := l.escalate(ctx, decision, dom, page.Screenshots, log)

	citations := []Citation{{Type: CitationURL, Value: req.URL}}
	if citeShots {
		for _, p := range page.Screenshots {
			citations = append(citations, Citation{Type: CitationScreenshot, Value: p})
		}
	}
	resp := Response{
		URL:            req.URL,
		FetchedAt:      fetchedAt,
		MethodUsed:     out.Method,
		Title:          out.Title,
		TextMarkdown:   out.TextMarkdown,
		TablesMarkdown: out.TablesMarkdown,
		Links:          nonNil(page.Links),
		Screenshots:    nonNil(page.Screenshots),
		Warnings:       nonNil(out.Warnings),
		Confidence:     out.Confidence,
		Citations:      citations,
	}

	if _, err := l.store.SaveExtraction(ctx, key, resp); err != nil {
		log.Warn().Err(err).Str("stage", "cache").Msg("extraction not saved")
	}
	log.Info().
		Str("method", string(resp.MethodUsed)).
		Float64("confidence", resp.Confidence).
		Int("warnings", len(resp.Warnings)).
		Dur("duration", l.now().Sub(start)).
		Msg("browse done")
	return resp, nil
}

// escalate turns the decision into the final outcome. The bool reports whether
// screenshots served as evidence.
func (l *Ladder) escalate(ctx context.Context, d Decision, dom extract.Outcome, shots []string, log zerolog.Logger) (extract.Outcome, bool) {
	escalation := d.Warnings()
	degraded := func(warning string, penalty float64) extract.Outcome {
		out := dom
		out.Warnings = concat(dom.Warnings, escalation, []string{warning})
		out.Confidence = max(ConfidenceFloor, dom.Confidence-penalty)
		return out
	}

	if d.Use == UseDOM {
		out := dom
		out.Warnings = concat(dom.Warnings, escalation)
		return out, false
	}
	if l.vision == nil || !l.vision.Available() {
		log.Info().Str("stage", "vision").Msg("vision unavailable")
		return degraded(WarnVisionUnavailable, unavailablePenalty), false
	}

	vr, err := l.vision.Extract(ctx, shots)
	if errors.Is(err, vision.ErrUnavailable) {
		log.Info().Str("stage", "vision").Msg("vision unavailable")
		return degraded(WarnVisionUnavailable, unavailablePenalty), false
	}
	if err != nil {
		log.Warn().Err(err).Str("stage", "vision").Msg("vision extraction failed")
		return degraded(fmt.Sprintf(warnVisionFailedFmt, err), failurePenalty), false
	}

	confidence := DefaultVisionConfidence
	if vr.Confidence != nil {
		confidence = *vr.Confidence
	}
	return extract.Outcome{
		Title:          dom.Title,
		TextMarkdown:   vr.TextMarkdown,
		TablesMarkdown: vr.TablesMarkdown,
		Warnings:       concat(escalation, vr.Warnings),
		Confidence:     confidence,
		Method:         extract.MethodVision,
	}, true
}

func concat(parts ...[]string) []string {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
