// Package config provides configuration management for feels.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWSPort is the publish channel port.
	DefaultWSPort = 3848
	// DefaultHTTPPort is the control API port.
	DefaultHTTPPort = 3849
	// DefaultCommentaryModel is the model asked for commentary.
	DefaultCommentaryModel = "claude-haiku-4-5"
	// DefaultSurpriseProbability is the chance that the classifier discards
	// its heuristic pick and chooses any emotion at random.
	DefaultSurpriseProbability = 0.35
)

// Config holds all daemon settings. Values come from Default, then
// settings.json, then environment variables.
type Config struct {
	Host     string `json:"FEELS_HOST" env:"FEELS_HOST"`
	WSPort   int    `json:"FEELS_WS_PORT" env:"FEELS_WS_PORT"`
	HTTPPort int    `json:"FEELS_HTTP_PORT" env:"FEELS_HTTP_PORT"`

	FeedPath  string `json:"FEELS_FEED_FILE" env:"FEELS_FEED_FILE"`
	CachePath string `json:"FEELS_CACHE_FILE" env:"FEELS_CACHE_FILE"`
	DBPath    string `json:"FEELS_DB_PATH" env:"FEELS_DB_PATH"`
	DBDSN     string `json:"FEELS_DB_DSN" env:"FEELS_DB_DSN"`
	MaxConns  int    `json:"FEELS_DB_MAX_CONNS" env:"FEELS_DB_MAX_CONNS"`
	PIDPath   string `json:"FEELS_PID_FILE" env:"FEELS_PID_FILE"`

	GiphyAPIKey    string `json:"GIPHY_API_KEY" env:"GIPHY_API_KEY"`
	GiphyURL       string `json:"FEELS_GIPHY_URL" env:"FEELS_GIPHY_URL"`
	ReactionLimit  int    `json:"FEELS_REACTION_LIMIT" env:"FEELS_REACTION_LIMIT"`
	ReactionRating string `json:"FEELS_REACTION_RATING" env:"FEELS_REACTION_RATING"`
	FetchTimeoutMS int    `json:"FEELS_FETCH_TIMEOUT_MS" env:"FEELS_FETCH_TIMEOUT_MS"`

	CommentaryEnabled   bool   `json:"FEELS_COMMENTARY_ENABLED" env:"FEELS_COMMENTARY_ENABLED"`
	CommentaryAPIKey    string `json:"FEELS_COMMENTARY_API_KEY" env:"FEELS_COMMENTARY_API_KEY"`
	CommentaryBaseURL   string `json:"FEELS_COMMENTARY_BASE_URL" env:"FEELS_COMMENTARY_BASE_URL"`
	CommentaryModel     string `json:"FEELS_COMMENTARY_MODEL" env:"FEELS_COMMENTARY_MODEL"`
	CommentaryTimeoutMS int    `json:"FEELS_COMMENTARY_TIMEOUT_MS" env:"FEELS_COMMENTARY_TIMEOUT_MS"`

	SurpriseProbability float64 `json:"FEELS_SURPRISE_PROBABILITY" env:"FEELS_SURPRISE_PROBABILITY"`
	EmotionsFile        string  `json:"FEELS_EMOTIONS_FILE" env:"FEELS_EMOTIONS_FILE"`

	WorkerPollMS       int `json:"FEELS_WORKER_POLL_MS" env:"FEELS_WORKER_POLL_MS"`
	FeedPollMS         int `json:"FEELS_FEED_POLL_MS" env:"FEELS_FEED_POLL_MS"`
	StatsIntervalSec   int `json:"FEELS_STATS_INTERVAL_SEC" env:"FEELS_STATS_INTERVAL_SEC"`
	RecentSessionLimit int `json:"FEELS_RECENT_SESSIONS" env:"FEELS_RECENT_SESSIONS"`

	HookURL string `json:"FEELS_HOOK_URL" env:"FEELS_HOOK_URL"`
}

var (
	global     *Config
	globalOnce sync.Once
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:                "localhost",
		WSPort:              DefaultWSPort,
		HTTPPort:            DefaultHTTPPort,
		FeedPath:            FeedPath(),
		CachePath:           CachePath(),
		DBPath:              DBPath(),
		MaxConns:            4,
		PIDPath:             PIDPath(),
		GiphyURL:            "https://api.giphy.com/v1/gifs/search",
		ReactionLimit:       25,
		ReactionRating:      "pg-13",
		FetchTimeoutMS:      5000,
		CommentaryEnabled:   true,
		CommentaryBaseURL:   "https://api.anthropic.com/v1/",
		CommentaryModel:     DefaultCommentaryModel,
		CommentaryTimeoutMS: 8000,
		SurpriseProbability: DefaultSurpriseProbability,
		WorkerPollMS:        50,
		FeedPollMS:          500,
		StatsIntervalSec:    30,
		RecentSessionLimit:  50,
	}
}

// DataDir returns the daemon data directory.
func DataDir() string {
	return filepath.Join(homeDir(), ".feels")
}

// ClaudeDir returns the directory shared with the capture hooks.
func ClaudeDir() string {
	return filepath.Join(homeDir(), ".claude")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "feels.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// FeedPath returns the event log the hooks append to.
func FeedPath() string {
	return filepath.Join(ClaudeDir(), "feels-feed.jsonl")
}

// CachePath returns the reaction cache file.
func CachePath() string {
	return filepath.Join(ClaudeDir(), "gif-cache.json")
}

// PIDPath returns the daemon PID file.
func PIDPath() string {
	return filepath.Join(ClaudeDir(), "feels-daemon.pid")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// EnsureDataDir creates the data directories.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0750); err != nil {
		return err
	}
	return os.MkdirAll(ClaudeDir(), 0750)
}

// EnsureSettings writes an empty settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte("{}\n"), 0600)
}

// EnsureAll creates the data directories and the settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load builds the configuration from defaults, settings.json and the environment.
// A malformed settings file or environment value is logged and ignored.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		merged := *cfg
		if err := json.Unmarshal(data, &merged); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
		} else {
			cfg = &merged
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	withEnv := *cfg
	if err := env.Parse(&withEnv); err != nil {
		log.Warn().Err(err).Msg("Invalid environment configuration, ignoring environment")
	} else {
		cfg = &withEnv
	}

	cfg.normalize()
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// normalize replaces out-of-range tunables with their defaults.
func (c *Config) normalize() {
	d := Default()
	if c.SurpriseProbability < 0 || c.SurpriseProbability > 1 {
		c.SurpriseProbability = d.SurpriseProbability
	}
	if c.WSPort <= 0 {
		c.WSPort = d.WSPort
	}
	if c.HTTPPort <= 0 {
		c.HTTPPort = d.HTTPPort
	}
	if c.ReactionLimit <= 0 {
		c.ReactionLimit = d.ReactionLimit
	}
	if c.WorkerPollMS <= 0 {
		c.WorkerPollMS = d.WorkerPollMS
	}
	if c.FeedPollMS <= 0 {
		c.FeedPollMS = d.FeedPollMS
	}
	if c.RecentSessionLimit <= 0 {
		c.RecentSessionLimit = d.RecentSessionLimit
	}
	if c.CommentaryAPIKey == "" {
		c.CommentaryAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = d.Host
	}
}

// WorkerPollInterval is how long the worker sleeps on an empty queue.
func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollMS) * time.Millisecond
}

// FeedPollInterval is the feed poll fallback period.
func (c *Config) FeedPollInterval() time.Duration {
	return time.Duration(c.FeedPollMS) * time.Millisecond
}

// FetchTimeout bounds one reaction search request.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// CommentaryTimeout bounds one commentary request.
func (c *Config) CommentaryTimeout() time.Duration {
	return time.Duration(c.CommentaryTimeoutMS) * time.Millisecond
}

// StatsInterval is the period of the stats heartbeat. Zero disables it.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSec) * time.Second
}
