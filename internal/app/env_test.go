package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// This test verifies that LoadEnvFiles reads KEY=VALUE pairs and populates os.Environ.
func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	unsetEnv(t, "FOO", "BAR")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR='beta'\n=orphan\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}

	if got := os.Getenv("FOO"); got != "alpha" {
		t.Fatalf("FOO=%q, want alpha", got)
	}
	if got := os.Getenv("BAR"); got != "beta" {
		t.Fatalf("BAR=%q, want beta", got)
	}
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	unsetEnv(t, "K")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

// Variables exported before loading win over dotenv values.
func TestLoadEnvFiles_EnvironmentWins(t *testing.T) {
	t.Setenv("HAL_VISION_MODEL", "from-shell")
	unsetEnv(t, "HAL_CACHE_DIR")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HAL_VISION_MODEL=from-file\nHAL_CACHE_DIR=/tmp/from-file\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(path); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("HAL_VISION_MODEL"); got != "from-shell" {
		t.Fatalf("HAL_VISION_MODEL=%q, want from-shell", got)
	}
	if got := os.Getenv("HAL_CACHE_DIR"); got != "/tmp/from-file" {
		t.Fatalf("HAL_CACHE_DIR=%q, want /tmp/from-file", got)
	}
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"A=1", "A", "1", true},
		{"  export B = \"two words\" ", "B", "two words", true},
		{"C='x\"", "C", "'x\"", true},
		{"D=", "D", "", true},
		{"# E=5", "", "", false},
		{"no-equals", "", "", false},
		{"=v", "", "", false},
	}
	for _, c := range cases {
		key, val, ok := parseEnvLine(c.line)
		if key != c.key || val != c.val || ok != c.ok {
			t.Fatalf("parseEnvLine(%q) = %q, %q, %v", c.line, key, val, ok)
		}
	}
}

func TestApplyEnvOverrides_FromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HAL_CACHE_DIR", "/tmp/hal-cache")
	t.Setenv("HAL_ALLOWLIST_DOMAINS", " Example.com, ,docs.Example.org ")
	t.Setenv("HAL_BROWSER_TIMEOUT_MS", "1500")
	t.Setenv("HAL_RENDERER", "STATIC")
	t.Setenv("HAL_VISION_MODEL", "gpt-4o")
	t.Setenv("HAL_EXTRACTOR", "Heuristic")

	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)
	if cfg.VisionAPIKey != "sk-test" {
		t.Fatalf("VisionAPIKey=%q", cfg.VisionAPIKey)
	}
	if cfg.CacheDir != "/tmp/hal-cache" {
		t.Fatalf("CacheDir=%q", cfg.CacheDir)
	}
	if want := []string{"example.com", "docs.example.org"}; !reflect.DeepEqual(cfg.AllowlistDomains, want) {
		t.Fatalf("AllowlistDomains=%v, want %v", cfg.AllowlistDomains, want)
	}
	if cfg.BrowserTimeout != 1500*time.Millisecond {
		t.Fatalf("BrowserTimeout=%v", cfg.BrowserTimeout)
	}
	if cfg.Renderer != RendererStatic {
		t.Fatalf("Renderer=%q", cfg.Renderer)
	}
	if cfg.VisionModel != "gpt-4o" {
		t.Fatalf("VisionModel=%q", cfg.VisionModel)
	}
	if cfg.Extractor != ExtractorHeuristic {
		t.Fatalf("Extractor=%q", cfg.Extractor)
	}
}

func TestApplyEnvOverrides_InvalidTimeoutKeepsDefault(t *testing.T) {
	t.Setenv("HAL_BROWSER_TIMEOUT_MS", "soon")
	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)
	if cfg.BrowserTimeout != DefaultBrowserTimeout {
		t.Fatalf("BrowserTimeout=%v, want default", cfg.BrowserTimeout)
	}
}

// Boolean variables accept the usual truthy and falsey spellings.
func TestApplyEnvOverrides_BoolToggles(t *testing.T) {
	t.Setenv("VERBOSE", "yes")
	t.Setenv("HAL_BROWSER_HEADLESS", "off")
	t.Setenv("HAL_CACHE_STRICT_PERMS", "1")
	cfg := DefaultConfig()
	ApplyEnvOverrides(&cfg)
	if !cfg.Verbose || cfg.BrowserHeadless || !cfg.CacheStrictPerms {
		t.Fatalf("bool toggles not applied: %+v", cfg)
	}
	t.Setenv("VERBOSE", "maybe")
	ApplyEnvOverrides(&cfg)
	if !cfg.Verbose {
		t.Fatalf("unrecognized value must leave the setting alone")
	}
}

// unsetEnv removes keys for the duration of the test and restores them after.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}
