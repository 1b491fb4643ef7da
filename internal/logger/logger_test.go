package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Logger:
// - File sink writes key=value lines at the configured level
// - Console sink only shows warnings by default
// - Both sinks filter independently
// - Silent verbosity disables the file sink
// - New() creates the log directory
// - LevelForVerbosity() maps every verbosity name

func TestNew_FileSinkWritesFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "km.log")
	log, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	log.Info().Str("Command", "put").Msg("km CLI starting")
	log.Debug().Msg("details")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "km CLI starting")
	assert.Contains(t, string(data), "Command=put")
	assert.Contains(t, string(data), "details")
}

func TestNew_ConsoleShowsWarningsOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Config{Console: true, Out: &buf})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("skipping broken node")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "skipping broken node")
}

func TestNew_IndependentSinks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "km.log")
	log, err := New(Config{Level: "info", File: path, Console: true, ConsoleLevel: "error", Out: &buf})
	require.NoError(t, err)

	log.Info().Msg("file only")
	log.Error().Msg("both")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file only")
	assert.Contains(t, string(data), "both")
	assert.NotContains(t, buf.String(), "file only")
	assert.Contains(t, buf.String(), "both")
}

func TestNew_SilentDisablesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "km.log")
	log, err := New(Config{Level: LevelForVerbosity("silent"), File: path})
	require.NoError(t, err)
	log.Error().Msg("nothing")
	require.NoError(t, log.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLevelForVerbosity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disabled", LevelForVerbosity("silent"))
	assert.Equal(t, "error", LevelForVerbosity("quiet"))
	assert.Equal(t, "info", LevelForVerbosity("normal"))
	assert.Equal(t, "debug", LevelForVerbosity("verbose"))
	assert.Equal(t, "trace", LevelForVerbosity("debug"))
	assert.Equal(t, "info", LevelForVerbosity(""))
}
