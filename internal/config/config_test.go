// Package config provides configuration management for feels.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.T().Setenv("HOME", s.tempDir)
	for _, key := range []string{"FEELS_WS_PORT", "FEELS_HTTP_PORT", "FEELS_SURPRISE_PROBABILITY", "GIPHY_API_KEY", "ANTHROPIC_API_KEY"} {
		s.T().Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWSPort, cfg.WSPort)
	s.Equal(DefaultHTTPPort, cfg.HTTPPort)
	s.Equal(DefaultCommentaryModel, cfg.CommentaryModel)
	s.Equal(4, cfg.MaxConns)
	s.Equal(25, cfg.ReactionLimit)
	s.Equal("pg-13", cfg.ReactionRating)
	s.Equal(50, cfg.RecentSessionLimit)
	s.InDelta(DefaultSurpriseProbability, cfg.SurpriseProbability, 1e-9)
	s.Equal(50*time.Millisecond, cfg.WorkerPollInterval())
	s.True(cfg.CommentaryEnabled)
}

// TestPaths tests the derived file locations.
func (s *ConfigSuite) TestPaths() {
	s.Contains(DataDir(), ".feels")
	s.Contains(DBPath(), "feels.db")
	s.Contains(SettingsPath(), "settings.json")
	s.Equal(filepath.Join(s.tempDir, ".claude", "feels-feed.jsonl"), FeedPath())
	s.Equal(filepath.Join(s.tempDir, ".claude", "gif-cache.json"), CachePath())
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	s.Require().NoError(EnsureAll())

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
	_, err = os.Stat(SettingsPath())
	s.NoError(err)

	// Second call should not error (file exists)
	s.NoError(EnsureSettings())
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name             string
		settingsJSON     string
		expectedWSPort   int
		expectedSurprise float64
		expectedRating   string
	}{
		{
			name:             "no settings file",
			expectedWSPort:   DefaultWSPort,
			expectedSurprise: DefaultSurpriseProbability,
			expectedRating:   "pg-13",
		},
		{
			name:             "custom port",
			settingsJSON:     `{"FEELS_WS_PORT": 38888}`,
			expectedWSPort:   38888,
			expectedSurprise: DefaultSurpriseProbability,
			expectedRating:   "pg-13",
		},
		{
			name:             "custom surprise probability",
			settingsJSON:     `{"FEELS_SURPRISE_PROBABILITY": 0.15, "FEELS_REACTION_RATING": "g"}`,
			expectedWSPort:   DefaultWSPort,
			expectedSurprise: 0.15,
			expectedRating:   "g",
		},
		{
			name:             "out of range probability falls back",
			settingsJSON:     `{"FEELS_SURPRISE_PROBABILITY": 3}`,
			expectedWSPort:   DefaultWSPort,
			expectedSurprise: DefaultSurpriseProbability,
			expectedRating:   "pg-13",
		},
		{
			name:             "invalid JSON returns defaults",
			settingsJSON:     `{invalid}`,
			expectedWSPort:   DefaultWSPort,
			expectedSurprise: DefaultSurpriseProbability,
			expectedRating:   "pg-13",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			home := s.T().TempDir()
			s.T().Setenv("HOME", home)
			s.Require().NoError(os.MkdirAll(filepath.Join(home, ".feels"), 0750))

			if tt.settingsJSON != "" {
				s.Require().NoError(os.WriteFile(SettingsPath(), []byte(tt.settingsJSON), 0600))
			}

			cfg, err := Load()
			s.NoError(err)
			s.Require().NotNil(cfg)
			s.Equal(tt.expectedWSPort, cfg.WSPort)
			s.InDelta(tt.expectedSurprise, cfg.SurpriseProbability, 1e-9)
			s.Equal(tt.expectedRating, cfg.ReactionRating)
		})
	}
}

// TestLoad_EnvOverridesSettings tests that environment variables win over settings.json.
func (s *ConfigSuite) TestLoad_EnvOverridesSettings() {
	s.Require().NoError(EnsureDataDir())
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte(`{"FEELS_HTTP_PORT": 40000, "GIPHY_API_KEY": "from-file"}`), 0600))
	s.T().Setenv("FEELS_HTTP_PORT", "41000")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(41000, cfg.HTTPPort)
	s.Equal("from-file", cfg.GiphyAPIKey)
}

// TestLoad_InvalidEnvIgnored tests that a malformed env value keeps file settings.
func (s *ConfigSuite) TestLoad_InvalidEnvIgnored() {
	s.T().Setenv("FEELS_WS_PORT", "not-a-number")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(DefaultWSPort, cfg.WSPort)
}

// TestLoad_CommentaryKeyFallback tests ANTHROPIC_API_KEY as commentary key.
func (s *ConfigSuite) TestLoad_CommentaryKeyFallback() {
	s.T().Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("sk-test", cfg.CommentaryAPIKey)
}

func TestGet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Greater(t, cfg.WSPort, 0)
	assert.NotEmpty(t, cfg.CommentaryModel)
}
