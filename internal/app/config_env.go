package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables when the
// corresponding variables are set. It runs after the config file so the
// environment takes precedence over it, while flags stay highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, envKey string) {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.VisionAPIKey, "OPENAI_API_KEY")
	setString(&cfg.VisionBaseURL, "HAL_VISION_BASE_URL")
	setString(&cfg.VisionModel, "HAL_VISION_MODEL")
	setString(&cfg.CacheDir, "HAL_CACHE_DIR")
	setString(&cfg.Renderer, "HAL_RENDERER")
	setString(&cfg.BrowserControlURL, "HAL_BROWSER_URL")
	setString(&cfg.BrowserBin, "HAL_BROWSER_BIN")
	setString(&cfg.ListenAddr, "HAL_LISTEN_ADDR")
	setString(&cfg.Extractor, "HAL_EXTRACTOR")
	cfg.Renderer = strings.ToLower(cfg.Renderer)
	cfg.Extractor = strings.ToLower(cfg.Extractor)

	if v, ok := os.LookupEnv("HAL_ALLOWLIST_DOMAINS"); ok {
		cfg.AllowlistDomains = ParseAllowlist(v)
	}

	setMillis := func(dst *time.Duration, envKey string) {
		s := strings.TrimSpace(os.Getenv(envKey))
		if s == "" {
			return
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			log.Warn().Str("env", envKey).Str("value", s).Msg("ignoring invalid millisecond value")
			return
		}
		*dst = time.Duration(n) * time.Millisecond
	}
	setMillis(&cfg.BrowserTimeout, "HAL_BROWSER_TIMEOUT_MS")
	setMillis(&cfg.VisionTimeout, "HAL_VISION_TIMEOUT_MS")

	if s := strings.TrimSpace(os.Getenv("HAL_VISION_MAX_TOKENS")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.VisionMaxTokens = n
		}
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, envKey string) {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
			switch s {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheStrictPerms, "HAL_CACHE_STRICT_PERMS")
	setBool(&cfg.BrowserHeadless, "HAL_BROWSER_HEADLESS")
	setBool(&cfg.VisionJSONMode, "HAL_VISION_JSON_MODE")
}
