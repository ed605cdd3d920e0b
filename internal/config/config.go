package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreLog    = "log"
)

// Config holds all user-configurable settings.
type Config struct {
	// SearchURL is the search engine's query endpoint.
	SearchURL string `json:"search_url"`
	// SiteDomain scopes the search and the identifier pattern (e.g. "imdb.com").
	SiteDomain string `json:"site_domain"`
	// SiteOrigin is prefixed to detail-page and redirect paths.
	SiteOrigin string `json:"site_origin"`
	// PosterCDN is the image host prefix the poster fragment is cut from.
	PosterCDN string `json:"poster_cdn"`
	// UserAgent is sent on every request; some sites reject Go's default.
	UserAgent string `json:"user_agent"`
	// ResultCount is how many results the search engine is asked for.
	ResultCount int `json:"result_count"`
	// RequestsPerSecond throttles outbound HTTP requests.
	RequestsPerSecond float64 `json:"requests_per_second"`
	// HTTPTimeoutSeconds bounds a single request. 0 means no timeout.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`
	// Store selects the persistence backend: "sqlite" or "log".
	Store string `json:"store"`
	// PosterDir is where poster images are saved.
	PosterDir string `json:"poster_dir"`
	// LogLevel is a zerolog level name.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home := homeDirOrFallback()
	return &Config{
		SearchURL:          "http://www.bing.com/search",
		SiteDomain:         "imdb.com",
		SiteOrigin:         "http://www.imdb.com",
		PosterCDN:          "http://ia.media-imdb.com/images/M/",
		UserAgent:          "Mozilla/5.0 (Windows NT 6.1; WOW64)",
		ResultCount:        5,
		RequestsPerSecond:  5.0,
		HTTPTimeoutSeconds: 0,
		Store:              StoreSQLite,
		PosterDir:          filepath.Join(home, "Pictures", "addmovie"),
		LogLevel:           "info",
	}
}

// HTTPTimeout returns the per-request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Validate reports settings that would make every search fail.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SearchURL) == "" {
		return fmt.Errorf("search_url must not be empty")
	}
	if strings.TrimSpace(c.SiteDomain) == "" {
		return fmt.Errorf("site_domain must not be empty")
	}
	if strings.TrimSpace(c.SiteOrigin) == "" {
		return fmt.Errorf("site_origin must not be empty")
	}
	if c.ResultCount <= 0 {
		return fmt.Errorf("result_count must be positive, got %d", c.ResultCount)
	}
	switch c.Store {
	case StoreSQLite, StoreLog:
	default:
		return fmt.Errorf("unknown store %q (want %q or %q)", c.Store, StoreSQLite, StoreLog)
	}
	return nil
}

// ConfigDir returns the directory where config and data files are stored.
func ConfigDir() string {
	if dir := os.Getenv("ADDMOVIE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "addmovie")
}

// DBPath returns the path to the SQLite database.
func DBPath() string {
	return filepath.Join(ConfigDir(), "movies.db")
}

// LogPath returns the path the TUI writes its log to.
func LogPath() string {
	return filepath.Join(ConfigDir(), "addmovie.log")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads config from disk, returning defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigPath(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", ConfigPath(), err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}
