package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and environment variables.
type FileConfig struct {
	Cache struct {
		Dir         string `yaml:"dir" json:"dir"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Safety struct {
		Allowlist []string `yaml:"allowlist" json:"allowlist"`
	} `yaml:"safety" json:"safety"`

	Browser struct {
		Renderer   string `yaml:"renderer" json:"renderer"`
		TimeoutMS  int    `yaml:"timeoutMs" json:"timeoutMs"`
		ControlURL string `yaml:"controlURL" json:"controlURL"`
		Bin        string `yaml:"bin" json:"bin"`
		Headless   *bool  `yaml:"headless" json:"headless"`
		UserAgent  string `yaml:"userAgent" json:"userAgent"`
	} `yaml:"browser" json:"browser"`

	Extract struct {
		Method string `yaml:"method" json:"method"`
	} `yaml:"extract" json:"extract"`

	Vision struct {
		BaseURL   string `yaml:"base" json:"base"`
		Model     string `yaml:"model" json:"model"`
		APIKey    string `yaml:"key" json:"key"`
		MaxTokens int    `yaml:"maxTokens" json:"maxTokens"`
		TimeoutMS int    `yaml:"timeoutMs" json:"timeoutMs"`
		JSONMode  bool   `yaml:"jsonMode" json:"jsonMode"`
	} `yaml:"vision" json:"vision"`

	Server struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"server" json:"server"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. It runs on top
// of DefaultConfig and before the environment.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if len(fc.Safety.Allowlist) > 0 {
		cfg.AllowlistDomains = ParseAllowlist(strings.Join(fc.Safety.Allowlist, ","))
	}

	if fc.Browser.Renderer != "" {
		cfg.Renderer = strings.ToLower(fc.Browser.Renderer)
	}
	if fc.Browser.TimeoutMS > 0 {
		cfg.BrowserTimeout = time.Duration(fc.Browser.TimeoutMS) * time.Millisecond
	}
	if fc.Browser.ControlURL != "" {
		cfg.BrowserControlURL = fc.Browser.ControlURL
	}
	if fc.Browser.Bin != "" {
		cfg.BrowserBin = fc.Browser.Bin
	}
	if fc.Browser.Headless != nil {
		cfg.BrowserHeadless = *fc.Browser.Headless
	}
	if fc.Browser.UserAgent != "" {
		cfg.UserAgent = fc.Browser.UserAgent
	}

	if fc.Extract.Method != "" {
		cfg.Extractor = strings.ToLower(fc.Extract.Method)
	}

	if fc.Vision.BaseURL != "" {
		cfg.VisionBaseURL = fc.Vision.BaseURL
	}
	if fc.Vision.Model != "" {
		cfg.VisionModel = fc.Vision.Model
	}
	if fc.Vision.APIKey != "" {
		cfg.VisionAPIKey = fc.Vision.APIKey
	}
	if fc.Vision.MaxTokens > 0 {
		cfg.VisionMaxTokens = fc.Vision.MaxTokens
	}
	if fc.Vision.TimeoutMS > 0 {
		cfg.VisionTimeout = time.Duration(fc.Vision.TimeoutMS) * time.Millisecond
	}
	if fc.Vision.JSONMode {
		cfg.VisionJSONMode = true
	}

	if fc.Server.Addr != "" {
		cfg.ListenAddr = fc.Server.Addr
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}
