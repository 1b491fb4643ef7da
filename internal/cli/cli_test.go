package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the km commands:
// - put, get and delete round-trip a record through JSON output
// - search merges results and warns about nodes without a database
// - human search output prints the matched content
// - put to a read-only node fails with the node error
// - the log file records the starting command
// - config validate reports an invalid file with its field
// - unknown --format values are rejected before any command runs

// Commands share package state, so these tests do not run in parallel.

const testConfig = `{
  "nodes": {
    "working": {
      "id": "working",
      "access": "full",
      "contentIndex": { "$type": "sqlite", "path": "%[1]s/working/content.db" },
      "fileStorage": { "$type": "disk", "path": "%[1]s/working/files" },
      "searchIndexes": [
        { "$type": "sqliteFTS", "id": "fts", "path": "%[1]s/working/fts.db", "required": true, "enableStemming": true }
      ]
    },
    "archive": {
      "id": "archive",
      "access": "readOnly",
      "contentIndex": { "$type": "sqlite", "path": "%[1]s/archive/content.db" },
      "searchIndexes": [
        { "$type": "sqliteFTS", "id": "fts", "path": "%[1]s/archive/fts.db" }
      ]
    }
  }
}`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfig, filepath.ToSlash(dir))), 0o644))
	return path
}

// resetFlags restores every flag to its default so runs do not leak into
// each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes km with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runJSON(t *testing.T, out any, args ...string) string {
	t.Helper()
	stdout, stderr, err := run(t, append(args, "--format", "json")...)
	require.NoError(t, err, stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), out), stdout)
	return stderr
}

func TestContentRoundTrip(t *testing.T) {
	cfg := writeTestConfig(t)

	var put map[string]any
	runJSON(t, &put, "put", "Renew the TLS certificate before Friday",
		"--id", "cert", "--title", "Certificates", "--tag", "topic=ops", "--config", cfg)
	assert.Equal(t, "cert", put["id"])
	assert.Equal(t, "working", put["nodeId"])
	assert.Equal(t, true, put["completed"])

	var rec map[string]any
	runJSON(t, &rec, "get", "cert", "--config", cfg)
	assert.Equal(t, "working", rec["nodeId"])
	assert.Equal(t, "Renew the TLS certificate before Friday", rec["content"])
	assert.Equal(t, map[string]any{"topic": "ops"}, rec["tags"])

	var del map[string]any
	runJSON(t, &del, "delete", "cert", "--config", cfg)
	assert.Equal(t, map[string]any{"id": "cert", "deleted": true}, del)

	_, _, err := run(t, "get", "cert", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSearch_WarnsAboutSkippedNodes(t *testing.T) {
	cfg := writeTestConfig(t)

	var put map[string]any
	runJSON(t, &put, "put", "The deployment pipeline runs nightly", "--id", "deploy", "--config", cfg)
	runJSON(t, &put, "put", "Lunch menu for the offsite", "--id", "lunch", "--config", cfg)

	var resp struct {
		TotalResults int `json:"totalResults"`
		Results      []struct {
			ID     string `json:"id"`
			NodeID string `json:"nodeId"`
		} `json:"results"`
		SkippedNodes []struct {
			NodeID string `json:"nodeId"`
		} `json:"skippedNodes"`
	}
	stderr := runJSON(t, &resp, "search", "deployment", "--config", cfg)

	require.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, "deploy", resp.Results[0].ID)
	assert.Equal(t, "working", resp.Results[0].NodeID)
	require.Len(t, resp.SkippedNodes, 1)
	assert.Equal(t, "archive", resp.SkippedNodes[0].NodeID)
	assert.Contains(t, stderr, "skipping broken node archive")
}

func TestSearch_HumanOutput(t *testing.T) {
	cfg := writeTestConfig(t)

	var put map[string]any
	runJSON(t, &put, "put", "Quarterly planning notes", "--id", "plan", "--config", cfg)

	stdout, _, err := run(t, "search", "planning", "--node", "working", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 results for \"planning\"")
	assert.Contains(t, stdout, "Quarterly planning notes")
}

func TestPut_ReadOnlyNode(t *testing.T) {
	cfg := writeTestConfig(t)

	_, _, err := run(t, "put", "nope", "--node", "archive", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestPut_FromStdin(t *testing.T) {
	cfg := writeTestConfig(t)

	resetFlags(rootCmd)
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader("piped content"))
	rootCmd.SetArgs([]string{"put", "-", "--id", "piped", "--config", cfg, "--format", "json"})
	require.NoError(t, rootCmd.Execute())

	var rec map[string]any
	runJSON(t, &rec, "get", "piped", "--node", "working", "--config", cfg)
	assert.Equal(t, "piped content", rec["content"])
}

func TestLogFile(t *testing.T) {
	cfg := writeTestConfig(t)
	logPath := filepath.Join(t.TempDir(), "km.log")

	_, _, err := run(t, "nodes", "--config", cfg, "--log-file", logPath)
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "km CLI starting")
	assert.Contains(t, string(data), "Command=nodes")
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes": {"a": {"id": "b", "contentIndex": {"$type": "sqlite", "path": "x.db"}}}}`), 0o644))

	var out map[string]any
	stdout, _, err := run(t, "config", "validate", "--config", path, "--format", "json")
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	assert.Equal(t, false, out["valid"])
	assert.NotEmpty(t, out["message"])
}

func TestInvalidFormat(t *testing.T) {
	cfg := writeTestConfig(t)

	_, _, err := run(t, "nodes", "--config", cfg, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
