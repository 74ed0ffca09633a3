package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/internal/config"
	"github.com/dshills/hybridrag/internal/storage"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvEmbeddingProvider, "local")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeDocs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	docs := map[string]string{
		"errors/rate_limit.md": "# Rate limits\n\nA rate_limit error is returned when too many requests hit the API at once.",
		"guides/webhooks.md":   "# Webhooks\n\nWebhooks notify your server when events happen in your account.",
	}
	for rel, content := range docs {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hybridrag version "+version)
	assert.Contains(t, out, "SQLite Driver: "+storage.DriverName)
}

func TestIndexAndSearch(t *testing.T) {
	db := filepath.Join(t.TempDir(), "corpus.db")

	out, err := run(t, "--db", db, "index", writeDocs(t))
	require.NoError(t, err)

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 2, stats["DocumentsIndexed"])

	out, err = run(t, "--db", db, "search", "--limit", "1", "rate_limit")
	require.NoError(t, err)

	var res searchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, "errors/rate_limit.md", res.Results[0].Source)
	assert.Equal(t, "hybrid", res.SearchMethod)
	assert.False(t, res.Degraded)

	out, err = run(t, "--db", db, "search", "--mode", "keyword", "--alpha", "0.5", "webhooks events")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "keyword", res.SearchMethod)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "guides/webhooks.md", res.Results[0].Source)
}

func TestSearchCmd_InvalidMode(t *testing.T) {
	db := filepath.Join(t.TempDir(), "corpus.db")
	_, err := run(t, "--db", db, "search", "--mode", "telepathy", "anything")
	assert.Error(t, err)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestEmbedCmd(t *testing.T) {
	out, err := run(t, "embed", "--preview", "4", "hello world")
	require.NoError(t, err)

	var res embedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "local", res.Provider)
	assert.Greater(t, res.Dimension, 0)
	assert.Len(t, res.Preview, 4)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  temperature: -1\n"), 0o600))

	_, err := run(t, "--config", path, "embed", "x")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = run(t, "--log-level", "chatty", "embed", "x")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
