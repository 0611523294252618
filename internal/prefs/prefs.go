// Package prefs holds the command line client's persisted preferences.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"consolidador/internal/apiclient"
	"consolidador/internal/monitor"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	default:
		return "", fmt.Errorf("prefs: unknown theme %q (use light or dark)", raw)
	}
}

// Prefs is loaded once at startup and handed to every command.
type Prefs struct {
	Theme           Theme  `yaml:"theme"`
	APIURL          string `yaml:"api_url"`
	PollInterval    string `yaml:"poll_interval"`
	MaxPollFailures int    `yaml:"max_poll_failures"`
}

// Defaults matches a backend on localhost with the light palette.
func Defaults() Prefs {
	return Prefs{
		Theme:           ThemeLight,
		APIURL:          apiclient.DefaultBaseURL,
		PollInterval:    monitor.DefaultInterval.String(),
		MaxPollFailures: monitor.DefaultMaxPollFailures,
	}
}

// DefaultPath is ~/.config/consolidador/prefs.yaml, or a relative file when
// the config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "consolidador.yaml"
	}
	return filepath.Join(dir, "consolidador", "prefs.yaml")
}

// Load reads path. A missing file yields the defaults; missing keys keep
// their default values.
func Load(path string) (Prefs, error) {
	p := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("prefs: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Defaults(), fmt.Errorf("prefs: parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Defaults(), err
	}
	return p, nil
}

// Save writes p to path, creating the parent directory.
func (p Prefs) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prefs: ensure directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("prefs: write %s: %w", path, err)
	}
	return nil
}

func (p Prefs) Validate() error {
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		return err
	}
	if _, err := p.Interval(); err != nil {
		return err
	}
	if p.MaxPollFailures < 0 {
		return fmt.Errorf("prefs: max_poll_failures must not be negative")
	}
	return nil
}

// Interval parses PollInterval; empty means the monitor default.
func (p Prefs) Interval() (time.Duration, error) {
	if strings.TrimSpace(p.PollInterval) == "" {
		return monitor.DefaultInterval, nil
	}
	d, err := time.ParseDuration(p.PollInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("prefs: invalid poll_interval %q", p.PollInterval)
	}
	return d, nil
}
