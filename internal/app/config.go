package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Renderer names.
const (
	RendererBrowser = "browser"
	RendererStatic  = "static"
)

// DOM extractor names.
const (
	ExtractorReadability = "readability"
	ExtractorHeuristic   = "heuristic"
)

// Defaults for Config.
const (
	DefaultCacheDir        = ".hal_cache"
	DefaultBrowserTimeout  = 20 * time.Second
	DefaultVisionModel     = "gpt-4.1-mini"
	DefaultVisionMaxTokens = 1800
	DefaultVisionTimeout   = 60 * time.Second
	DefaultListenAddr      = ":8080"
	DefaultUserAgent       = "hal/1.0 (+https://github.com/hyperifyio/hal)"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Cache
	CacheDir         string
	CacheStrictPerms bool
	// CacheClear wipes the cache directory once at startup.
	CacheClear bool

	// Safety
	AllowlistDomains []string

	// Rendering
	Renderer          string
	BrowserTimeout    time.Duration
	BrowserControlURL string
	BrowserBin        string
	BrowserHeadless   bool
	UserAgent         string

	// Extraction
	Extractor string

	// Vision
	VisionAPIKey    string
	VisionBaseURL   string
	VisionModel     string
	VisionMaxTokens int
	VisionTimeout   time.Duration
	VisionJSONMode  bool

	// Server
	ListenAddr string

	Verbose bool
}

// DefaultConfig returns the configuration used when no file, environment or
// flag says otherwise.
func DefaultConfig() Config {
	return Config{
		CacheDir:        DefaultCacheDir,
		Renderer:        RendererBrowser,
		BrowserTimeout:  DefaultBrowserTimeout,
		BrowserHeadless: true,
		UserAgent:       DefaultUserAgent,
		Extractor:       ExtractorReadability,
		VisionModel:     DefaultVisionModel,
		VisionMaxTokens: DefaultVisionMaxTokens,
		VisionTimeout:   DefaultVisionTimeout,
		ListenAddr:      DefaultListenAddr,
	}
}

// LoadConfig builds a Config from defaults, then the optional config file at
// path, then the environment. Flags are applied by the caller afterwards.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		ApplyFileConfig(&cfg, fc)
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// ValidateConfig performs minimal validation of required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return errors.New("config: cache dir is required")
	}
	switch cfg.Renderer {
	case RendererBrowser, RendererStatic:
	default:
		return fmt.Errorf("config: renderer must be %q or %q, got %q", RendererBrowser, RendererStatic, cfg.Renderer)
	}
	switch cfg.Extractor {
	case ExtractorReadability, ExtractorHeuristic:
	default:
		return fmt.Errorf("config: extractor must be %q or %q, got %q", ExtractorReadability, ExtractorHeuristic, cfg.Extractor)
	}
	if cfg.BrowserTimeout <= 0 {
		return errors.New("config: browser timeout must be positive")
	}
	if cfg.VisionTimeout <= 0 {
		return errors.New("config: vision timeout must be positive")
	}
	if cfg.VisionMaxTokens < 0 {
		return errors.New("config: negative vision max tokens are not allowed")
	}
	return nil
}

// ParseAllowlist splits a comma-separated domain list, trimming and
// lowercasing entries and dropping empty ones.
func ParseAllowlist(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
