package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/hal/internal/app"
	"github.com/hyperifyio/hal/internal/ladder"
	"github.com/hyperifyio/hal/internal/report"
	"github.com/hyperifyio/hal/internal/server"
)

const (
	summaryChars  = 2000
	outputFile    = "hal_output.json"
	shutdownGrace = 10 * time.Second
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := app.LoadEnvFiles(".env", ".env.local"); err != nil {
		log.Warn().Err(err).Msg("load dotenv files")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: hal <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  browse [flags] URL   fetch a page and extract its text")
	fmt.Fprintln(w, "  serve [flags]        run the HTTP API and local GUI")
	fmt.Fprintln(w, "  version              print build information")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "browse":
		return runBrowse(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "version":
		fmt.Fprintln(stdout, app.VersionString())
		return 0
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

// commonFlags are shared by browse and serve. Only flags given on the command
// line override file and environment values.
type commonFlags struct {
	configPath string
	verbose    bool
	cacheDir   string
	strict     bool
	clear      bool
	allow      string
	renderer   string
	extractor  string
	browserURL string
	headful    bool
	timeout    time.Duration
	model      string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("HAL_CONFIG"), "Path to YAML or JSON config file")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging")
	fs.StringVar(&c.cacheDir, "cache.dir", app.DefaultCacheDir, "Cache directory path")
	fs.BoolVar(&c.strict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.BoolVar(&c.clear, "cache.clear", false, "Clear cache directory before run")
	fs.StringVar(&c.allow, "domains.allow", "", "Comma-separated allowlist of domains; subdomains included")
	fs.StringVar(&c.renderer, "renderer", app.RendererBrowser, "Page renderer: browser or static")
	fs.StringVar(&c.extractor, "extractor", app.ExtractorReadability, "DOM extractor: readability or heuristic")
	fs.StringVar(&c.browserURL, "browser.url", "", "DevTools URL of a running browser instead of launching one")
	fs.BoolVar(&c.headful, "browser.headful", false, "Show the browser window")
	fs.DurationVar(&c.timeout, "timeout", app.DefaultBrowserTimeout, "Default page load timeout")
	fs.StringVar(&c.model, "vision.model", app.DefaultVisionModel, "Vision model name")
}

func (c *commonFlags) config(fs *flag.FlagSet) (app.Config, error) {
	cfg, err := app.LoadConfig(c.configPath)
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			cfg.Verbose = c.verbose
		case "cache.dir":
			cfg.CacheDir = c.cacheDir
		case "cache.strictPerms":
			cfg.CacheStrictPerms = c.strict
		case "cache.clear":
			cfg.CacheClear = c.clear
		case "domains.allow":
			cfg.AllowlistDomains = app.ParseAllowlist(c.allow)
		case "renderer":
			cfg.Renderer = c.renderer
		case "extractor":
			cfg.Extractor = c.extractor
		case "browser.url":
			cfg.BrowserControlURL = c.browserURL
		case "browser.headful":
			cfg.BrowserHeadless = !c.headful
		case "timeout":
			cfg.BrowserTimeout = c.timeout
		case "vision.model":
			cfg.VisionModel = c.model
		}
	})
	app.SetupLogging(cfg.Verbose)
	return cfg, app.ValidateConfig(cfg)
}

func runBrowse(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common  commonFlags
		mode    string
		visual  bool
		asJSON  bool
		outDir  string
		pdfPath string
	)
	common.register(fs)
	fs.StringVar(&mode, "mode", string(ladder.ModeAuto), "Extraction mode: auto, dom or vision")
	fs.BoolVar(&visual, "visual", false, "Request vision extraction in auto mode")
	fs.BoolVar(&asJSON, "json", false, "Print full JSON output")
	fs.StringVar(&outDir, "out", "", "Write hal_output.json to this directory")
	fs.StringVar(&pdfPath, "pdf", "", "Write a PDF rendering of the result to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "browse: exactly one URL is required")
		return 2
	}
	m, err := ladder.ParseMode(mode)
	if err != nil {
		fmt.Fprintf(stderr, "browse: %v\n", err)
		return 2
	}
	cfg, err := common.config(fs)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return 1
	}
	defer a.Close()

	req := ladder.NewRequest(fs.Arg(0))
	req.Mode = m
	req.VisualExtraction = visual
	req.Wait.TimeoutMS = int(cfg.BrowserTimeout / time.Millisecond)
	resp, err := a.Browse(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("browse failed")
		return app.ExitCode(err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		return 1
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Error().Err(err).Msg("create output dir")
			return 1
		}
		path := filepath.Join(outDir, outputFile)
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			log.Error().Err(err).Msg("write output")
			return 1
		}
		fmt.Fprintf(stdout, "Saved %s\n", path)
	}
	if pdfPath != "" {
		if err := report.WritePDF(resp, pdfPath); err != nil {
			log.Error().Err(err).Msg("write pdf")
			return 1
		}
		fmt.Fprintf(stdout, "Saved %s\n", pdfPath)
	}

	if asJSON {
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprint(stdout, summary(resp))
	}
	return 0
}

// summary is the human-readable output of browse: a header line and the start
// of the text.
func summary(resp ladder.Response) string {
	text := []rune(resp.TextMarkdown)
	if len(text) > summaryChars {
		text = text[:summaryChars]
	}
	return fmt.Sprintf("[%s] %s (%.2f)\n%s\n", resp.MethodUsed, resp.Title, resp.Confidence, string(text))
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common commonFlags
		addr   string
	)
	common.register(fs)
	fs.StringVar(&addr, "addr", app.DefaultListenAddr, "Listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := common.config(fs)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "addr" {
			cfg.ListenAddr = addr
		}
	})

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return 1
	}
	defer a.Close()

	logger := log.Logger.With().Str("component", "server").Logger()
	if err := server.NewServer(a, logger).ListenAndServe(ctx, cfg.ListenAddr, shutdownGrace); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return 1
	}
	return 0
}
