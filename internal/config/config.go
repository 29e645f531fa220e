package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/mo"
	"gopkg.in/yaml.v3"

	"recurset/internal/ics"
)

// RuleConfig describes a single recurrence-rule text source. Exactly one of
// Path or URL is expected.
type RuleConfig struct {
	// ID is an internal identifier used in the API and in logs.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Path is a local file holding the rule text.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// URL is an HTTP(S) endpoint serving the rule text.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone used for date-times that carry neither a
	// TZID nor a "Z" suffix (e.g. "America/Chicago").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Duration is the default occurrence length, as an RFC 5545 duration
	// (e.g. "PT1H"). Empty means rule texts must carry DURATION lines.
	Duration string `yaml:"duration" json:"duration"`

	// Start and Until are optional default DTSTART and UNTIL values, either
	// RFC 3339 or yyyyMMddTHHmmss[Z].
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	Until string `yaml:"until,omitempty" json:"until,omitempty"`

	// IterationLimit caps the occurrences walked per rule when looking for
	// its last occurrence.
	IterationLimit int `yaml:"iteration_limit" json:"iteration_limit"`

	// WatchCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used by the watch command.
	WatchCron string `yaml:"watch" json:"watch"`

	// CacheDir holds the HTTP cache for URL rule sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Rules is the list of rule text sources.
	Rules []RuleConfig `yaml:"rules" json:"rules"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		LogLevel:       "info",
		Timezone:       "UTC",
		Duration:       "PT1H",
		IterationLimit: ics.DefaultIterationLimit,
		WatchCron:      "*/15 * * * *",
		CacheDir:       "./var/rule-cache",
		Rules:          []RuleConfig{},
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.IterationLimit <= 0 {
		c.IterationLimit = ics.DefaultIterationLimit
	}
	if c.WatchCron == "" {
		c.WatchCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/rule-cache"
	}
	if c.Rules == nil {
		c.Rules = []RuleConfig{}
	}
	for i := range c.Rules {
		if c.Rules[i].ID == "" {
			c.Rules[i].ID = fmt.Sprintf("rule-%d", i+1)
		}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ParseOptions turns the configured defaults into parser options.
func (c *Config) ParseOptions() (ics.ParseOptions, error) {
	loc, err := c.Location()
	if err != nil {
		return ics.ParseOptions{}, err
	}
	opts := ics.ParseOptions{
		Defaults:       ics.ParseDefaults{Zone: loc},
		IterationLimit: c.IterationLimit,
	}

	if c.Duration != "" {
		d, err := ics.ParseDuration(c.Duration)
		if err != nil {
			return ics.ParseOptions{}, fmt.Errorf("invalid duration: %w", err)
		}
		opts.Defaults.Duration = mo.Some(d)
	}
	if c.Start != "" {
		t, err := ParseTime(c.Start, loc)
		if err != nil {
			return ics.ParseOptions{}, fmt.Errorf("invalid start: %w", err)
		}
		opts.Defaults.Start = mo.Some(t)
	}
	if c.Until != "" {
		t, err := ParseTime(c.Until, loc)
		if err != nil {
			return ics.ParseOptions{}, fmt.Errorf("invalid until: %w", err)
		}
		opts.Defaults.Until = mo.Some(t)
	}
	return opts, nil
}

// ParseTime accepts RFC 3339 or a yyyyMMddTHHmmss[Z] token read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return ics.ParseDateTime(s, loc)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	// First run: create default config file.
	cfg = DefaultConfig()
	if err := Save(path, cfg); err != nil {
		// Even if save fails, return cfg with error so caller can decide.
		return cfg, err
	}
	return cfg, nil
}

// Read loads the config file at path without touching the filesystem.
// A missing file yields the defaults together with an error matching
// fs.ErrNotExist; use ReadOrDefault to ignore it.
func Read(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), err
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// ReadOrDefault is Read with a missing file treated as the defaults.
func ReadOrDefault(path string) (*Config, error) {
	cfg, err := Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	return cfg, err
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".recurset-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
