package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPrintReport_Formats(t *testing.T) {
	updated := time.Now().Add(-3 * time.Minute)
	r := stateReport{Path: "/run/bridgemon/state", Exists: true, Failures: 2, Reason: "unreachable", UpdatedAt: &updated}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, "json", r))

		var got stateReport
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 2, got.Failures)
		assert.Equal(t, "unreachable", got.Reason)
		assert.True(t, got.Exists)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, "yaml", r))

		var got map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 2, got["failures"])
		assert.Equal(t, "/run/bridgemon/state", got["path"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, "text", r))

		out := stripANSI(buf.String())
		assert.Contains(t, out, "failing (2 consecutive)")
		assert.Contains(t, out, "unreachable")
		assert.Contains(t, out, "3 minutes ago")
		assert.Contains(t, out, "/run/bridgemon/state")
	})

	t.Run("text without state", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReport(&buf, "text", stateReport{Path: "/x"}))

		out := stripANSI(buf.String())
		assert.Contains(t, out, "no state yet")
		assert.Contains(t, out, "never")
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, printReport(&bytes.Buffer{}, "xml", r))
	})
}

func TestStateShowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("failures=3\nreason=degraded\n"), 0o644))

	out, code := runCLI(t, nil, "state", "show", "--state-file", path, "-o", "json", "--log-level", "error")
	require.Equal(t, 0, code, out)

	var got stateReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Failures)
	assert.Equal(t, "degraded", got.Reason)
	assert.Equal(t, path, got.Path)
	assert.NotNil(t, got.UpdatedAt)
}

func TestStateResetCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("failures=4\nreason=unreachable\n"), 0o644))

	out, code := runCLI(t, nil, "state", "reset", "--state-file", path)
	require.Equal(t, 0, code, out)
	assert.True(t, strings.Contains(out, "was 4 failures"), out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "failures=0\nreason=healthy\n", string(data))
}
