package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Settings:
// - LoadSettings() returns defaults rooted at ~/.km
// - KM_* environment variables override defaults
// - Explicit values set on viper (flags) win over the environment
// - Invalid verbosity is rejected

func TestLoadSettings_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := LoadSettings(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".km", "config.json"), s.ConfigPath)
	assert.Equal(t, VerbosityNormal, s.Verbosity)
	assert.Equal(t, "human", s.Format)
	assert.Equal(t, "127.0.0.1:9000", s.Addr)
	assert.Empty(t, s.LogFile)
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("KM_CONFIG", "/etc/km/config.json")
	t.Setenv("KM_FORMAT", "JSON")
	t.Setenv("KM_VERBOSITY", "verbose")
	t.Setenv("KM_LOG_FILE", "/tmp/km.log")

	s, err := LoadSettings(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/etc/km/config.json", s.ConfigPath)
	assert.Equal(t, "json", s.Format)
	assert.Equal(t, VerbosityVerbose, s.Verbosity)
	assert.Equal(t, "/tmp/km.log", s.LogFile)
}

func TestLoadSettings_ExplicitWins(t *testing.T) {
	t.Setenv("KM_FORMAT", "yaml")

	v := viper.New()
	v.Set("format", "json")

	s, err := LoadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "json", s.Format)
}

func TestLoadSettings_InvalidVerbosity(t *testing.T) {
	t.Setenv("KM_VERBOSITY", "chatty")

	_, err := LoadSettings(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid verbosity")
}
