package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/hal/internal/cache"
	"github.com/hyperifyio/hal/internal/extract"
	"github.com/hyperifyio/hal/internal/fetch"
	"github.com/hyperifyio/hal/internal/ladder"
	"github.com/hyperifyio/hal/internal/llm"
	"github.com/hyperifyio/hal/internal/render"
	"github.com/hyperifyio/hal/internal/safety"
	"github.com/hyperifyio/hal/internal/vision"
)

const modelPreflightTimeout = 5 * time.Second

// App owns the long-lived collaborators of the extraction ladder: the cache
// store, the safety gate, the page fetcher and the optional vision model.
type App struct {
	cfg    Config
	store  *cache.Store
	gate   *safety.Gate
	closer func() error
	ladder *ladder.Ladder
}

// New validates cfg and wires the ladder. A missing vision credential is not an
// error; escalation then degrades to DOM output with a warning.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	store := &cache.Store{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	initCache := store.Init
	if cfg.CacheClear {
		initCache = store.Clear
		log.Info().Str("dir", cfg.CacheDir).Msg("clearing cache")
	}
	if err := initCache(); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	gate := &safety.Gate{Resolver: net.DefaultResolver, Allowlist: cfg.AllowlistDomains}

	a := &App{cfg: cfg, store: store, gate: gate, closer: func() error { return nil }}

	var fetcher fetch.Fetcher
	switch cfg.Renderer {
	case RendererStatic:
		fetcher = &fetch.Client{
			HTTPClient:        newPageHTTPClient(),
			UserAgent:         cfg.UserAgent,
			MaxAttempts:       2,
			PerRequestTimeout: cfg.BrowserTimeout,
			CheckRedirect:     gate.CheckRedirect,
			MaxConcurrent:     16,
		}
	default:
		b := &render.Browser{
			ControlURL: cfg.BrowserControlURL,
			Bin:        cfg.BrowserBin,
			Headful:    !cfg.BrowserHeadless,
			WriteFile:  store.WriteScreenshot,
		}
		// Chrome keeps its own user agent unless one was configured.
		if cfg.UserAgent != DefaultUserAgent {
			b.UserAgent = cfg.UserAgent
		}
		fetcher = b
		a.closer = b.Close
	}

	var vx ladder.VisionExtractor
	if cfg.VisionAPIKey != "" {
		provider := llm.NewOpenAI(cfg.VisionAPIKey, cfg.VisionBaseURL, newHighThroughputHTTPClient())
		preflightModels(ctx, provider, cfg.VisionModel)
		vx = &vision.Extractor{
			Client:    provider,
			Model:     cfg.VisionModel,
			MaxTokens: cfg.VisionMaxTokens,
			Timeout:   cfg.VisionTimeout,
			JSONMode:  cfg.VisionJSONMode,
		}
	} else {
		log.Info().Msg("no vision credential configured; vision escalation disabled")
	}

	logger := log.Logger.With().Str("component", "ladder").Logger()
	l, err := ladder.New(ladder.Config{DefaultTimeout: cfg.BrowserTimeout}, ladder.Deps{
		Gate:    gate,
		Fetcher: fetcher,
		DOM:     domExtractor(cfg.Extractor),
		Vision:  vx,
		Store:   store,
		Logger:  &logger,
	})
	if err != nil {
		_ = a.closer()
		return nil, err
	}
	a.ladder = l
	return a, nil
}

func domExtractor(name string) extract.Extractor {
	if name == ExtractorHeuristic {
		return extract.HeuristicExtractor{}
	}
	return extract.DOM{}
}

// preflightModels lists models once so misconfigured endpoints show up at
// startup. It never fails New.
func preflightModels(ctx context.Context, ml llm.ModelLister, want string) {
	ctx, cancel := context.WithTimeout(ctx, modelPreflightTimeout)
	defer cancel()
	models, err := ml.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("vision model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("vision endpoint returned zero models")
		return
	}
	for _, m := range models.Models {
		if m.ID == want {
			log.Debug().Str("model", want).Msg("vision model available")
			return
		}
	}
	log.Warn().Str("model", want).Int("count", len(models.Models)).Msg("vision model not listed by endpoint")
}

// Browse runs one extraction.
func (a *App) Browse(ctx context.Context, req ladder.Request) (ladder.Response, error) {
	return a.ladder.Browse(ctx, req)
}

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Store returns the cache store.
func (a *App) Store() *cache.Store { return a.store }

// Close releases the browser if one was launched.
func (a *App) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer()
}

// ExitCode maps a Browse error to the CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, safety.ErrRejected):
		return 2
	case errors.Is(err, fetch.ErrFetchFailed):
		return 3
	default:
		return 1
	}
}

// SetupLogging configures the global zerolog level.
func SetupLogging(verbose bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
