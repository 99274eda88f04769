package app

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadEnvFiles reads dotenv files of KEY=VALUE pairs into the process
// environment. Later files override earlier ones, but a variable already
// present in the environment is never replaced. Missing files are skipped.
// Values are not expanded.
func LoadEnvFiles(paths ...string) error {
	vals := make(map[string]string)
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := readEnvFile(p, vals); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", p, err)
		}
	}
	for key, val := range vals {
		if _, ok := os.LookupEnv(key); ok {
			log.Debug().Str("key", key).Msg("dotenv value ignored; already set in environment")
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func readEnvFile(path string, into map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if key, val, ok := parseEnvLine(scanner.Text()); ok {
			into[key] = val
		}
	}
	return scanner.Err()
}

// parseEnvLine splits one dotenv line. Comments, blank lines and lines without
// a key are rejected. An optional "export " prefix and one pair of matching
// surrounding quotes are stripped.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		val = val[1 : n-1]
	}
	return key, val, true
}
