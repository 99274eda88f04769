package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfigFile_YAML(t *testing.T) {
	p := writeConfig(t, "hal.yaml", `
cache:
  dir: /var/cache/hal
  strictPerms: true
safety:
  allowlist: [Example.com]
browser:
  renderer: static
  timeoutMs: 5000
  headless: false
extract:
  method: heuristic
vision:
  model: gpt-4o
  maxTokens: 900
server:
  addr: 127.0.0.1:9000
`)
	fc, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := DefaultConfig()
	ApplyFileConfig(&cfg, fc)
	if cfg.CacheDir != "/var/cache/hal" || !cfg.CacheStrictPerms {
		t.Fatalf("cache section not applied: %+v", cfg)
	}
	if len(cfg.AllowlistDomains) != 1 || cfg.AllowlistDomains[0] != "example.com" {
		t.Fatalf("allowlist=%v", cfg.AllowlistDomains)
	}
	if cfg.Renderer != RendererStatic || cfg.BrowserTimeout != 5*time.Second || cfg.BrowserHeadless {
		t.Fatalf("browser section not applied: %+v", cfg)
	}
	if cfg.VisionModel != "gpt-4o" || cfg.VisionMaxTokens != 900 || cfg.VisionTimeout != DefaultVisionTimeout {
		t.Fatalf("vision section not applied: %+v", cfg)
	}
	if cfg.Extractor != ExtractorHeuristic {
		t.Fatalf("Extractor=%q", cfg.Extractor)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
}

func TestLoadConfigFile_JSONAndUnknownExtension(t *testing.T) {
	p := writeConfig(t, "hal.json", `{"vision":{"model":"m1"},"verbose":true}`)
	fc, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if fc.Vision.Model != "m1" || !fc.Verbose {
		t.Fatalf("json not parsed: %+v", fc)
	}

	p = writeConfig(t, "hal.conf", "vision:\n  model: m2\n")
	fc, err = LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load conf: %v", err)
	}
	if fc.Vision.Model != "m2" {
		t.Fatalf("fallback yaml not parsed: %+v", fc)
	}

	p = writeConfig(t, "bad.yaml", "cache: [unterminated")
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

// Environment beats the file; the file beats defaults.
func TestLoadConfig_Precedence(t *testing.T) {
	p := writeConfig(t, "hal.yaml", "vision:\n  model: from-file\ncache:\n  dir: /from/file\n")
	t.Setenv("HAL_VISION_MODEL", "from-env")
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VisionModel != "from-env" {
		t.Fatalf("VisionModel=%q, want from-env", cfg.VisionModel)
	}
	if cfg.CacheDir != "/from/file" {
		t.Fatalf("CacheDir=%q, want /from/file", cfg.CacheDir)
	}
	if cfg.Renderer != RendererBrowser {
		t.Fatalf("Renderer=%q, want default", cfg.Renderer)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cases := map[string]func(*Config){
		"cache dir": func(c *Config) { c.CacheDir = " " },
		"renderer":  func(c *Config) { c.Renderer = "webkit" },
		"extractor": func(c *Config) { c.Extractor = "ocr" },
		"timeout":   func(c *Config) { c.BrowserTimeout = 0 },
		"vision":    func(c *Config) { c.VisionTimeout = -time.Second },
		"tokens":    func(c *Config) { c.VisionMaxTokens = -1 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		err := ValidateConfig(cfg)
		if err == nil || !strings.HasPrefix(err.Error(), "config:") {
			t.Fatalf("%s: expected config error, got %v", name, err)
		}
	}
}
