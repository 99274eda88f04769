package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// KeyLen is the number of hex characters kept from the key digest.
const KeyLen = 24

const (
	htmlDir       = "html"
	textDir       = "text"
	screenshotDir = "screenshots"
)

// Store records fetched HTML, extraction payloads and screenshots on disk under
// Dir/html, Dir/text and Dir/screenshots. Entries are addressed by Key and a
// later write to the same key replaces the earlier one. No eviction policy is
// included.
type Store struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on cache directories and 0600 on
	// files.
	StrictPerms bool
}

// Key derives the cache key for a request: the same URL and mode on the same
// UTC calendar day always map to the same key.
func Key(url string, at time.Time, mode string) string {
	day := at.UTC().Format("2006-01-02")
	h := sha256.Sum256([]byte(url + "|" + day + "|" + mode))
	return hex.EncodeToString(h[:])[:KeyLen]
}

func (s *Store) dirMode() os.FileMode {
	if s.StrictPerms {
		return 0o700
	}
	return 0o755
}

func (s *Store) fileMode() os.FileMode {
	if s.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (s *Store) ensureDir(dir string) error {
	if s == nil || s.Dir == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.MkdirAll(dir, s.dirMode()); err != nil {
		return err
	}
	// If directory already existed and StrictPerms is on, tighten perms
	if s.StrictPerms {
		if info, err := os.Stat(dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	return nil
}

// Init creates the html, text and screenshots directories.
func (s *Store) Init() error {
	for _, sub := range []string{htmlDir, textDir, screenshotDir} {
		if err := s.ensureDir(filepath.Join(s.Dir, sub)); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every artifact under Dir and recreates the empty layout.
func (s *Store) Clear() error {
	if s == nil || strings.TrimSpace(s.Dir) == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return err
	}
	return s.Init()
}

// HTMLPath returns where the HTML snapshot for key lives.
func (s *Store) HTMLPath(key string) string {
	return filepath.Join(s.Dir, htmlDir, key+".html")
}

// ExtractionPath returns where the JSON extraction payload for key lives.
func (s *Store) ExtractionPath(key string) string {
	return filepath.Join(s.Dir, textDir, key+".json")
}

// ScreenshotPath returns where the screenshot with the given suffix lives,
// e.g. "full" or "selector_0".
func (s *Store) ScreenshotPath(key, suffix string) string {
	return filepath.Join(s.Dir, screenshotDir, key+"_"+suffix+".png")
}

// SaveHTML writes the HTML snapshot and returns its path.
func (s *Store) SaveHTML(_ context.Context, key string, html string) (string, error) {
	p := s.HTMLPath(key)
	if err := s.writeFile(p, []byte(html)); err != nil {
		return "", fmt.Errorf("save html: %w", err)
	}
	return p, nil
}

// SaveExtraction writes payload as indented JSON and returns its path.
func (s *Store) SaveExtraction(_ context.Context, key string, payload any) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode extraction: %w", err)
	}
	p := s.ExtractionPath(key)
	if err := s.writeFile(p, append(b, '\n')); err != nil {
		return "", fmt.Errorf("save extraction: %w", err)
	}
	return p, nil
}

// SaveScreenshot writes PNG bytes and returns the path.
func (s *Store) SaveScreenshot(_ context.Context, key, suffix string, png []byte) (string, error) {
	p := s.ScreenshotPath(key, suffix)
	if err := s.WriteScreenshot(p, png); err != nil {
		return "", err
	}
	return p, nil
}

// WriteScreenshot writes PNG bytes to a path obtained from ScreenshotPath.
func (s *Store) WriteScreenshot(path string, png []byte) error {
	if err := s.writeFile(path, png); err != nil {
		return fmt.Errorf("save screenshot: %w", err)
	}
	return nil
}

// LoadExtraction decodes a stored payload into dst. The ladder never reads
// the cache; this exists for inspection tooling.
func (s *Store) LoadExtraction(_ context.Context, key string, dst any) error {
	b, err := os.ReadFile(s.ExtractionPath(key))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// writeFile writes through a temp file in the target directory and renames it
// into place so concurrent writers never leave a torn file behind.
func (s *Store) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.ensureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, s.fileMode()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
