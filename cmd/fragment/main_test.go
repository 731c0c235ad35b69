package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fragments", "reports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "dashboard.html"),
		[]byte(`<section data-page="dashboard"><title>Dashboard</title>hello</section>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "reports", "index.html"),
		[]byte(`<section>reports</section>`), 0o644))
	cfg := "root: " + dir + `
max_attempts: 1
retry_delay: 10ms
transitions:
  enabled: false
`
	fn := filepath.Join(dir, "fragment.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(cfg), 0o644))
	return fn
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error", "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCandidatesCommand(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "candidates", "dashboard", "--config", fn)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/fragments/dashboard/dashboard.html",
		"/fragments/dashboard/index.html",
		"/fragments/dashboard.html",
	}, strings.Fields(out))
}

func TestLoadCommandWithStats(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "load", "dashboard", "--config", fn, "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "resource: dashboard")
	assert.Contains(t, out, "source: /fragments/dashboard.html")
	assert.Contains(t, out, "title: Dashboard")
	assert.Contains(t, out, "cache_size: 1")
}

func TestLoadCommandPrint(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "load", "reports", "--config", fn, "--print", "--target", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "<section>reports</section>")
}

func TestLoadCommandFallback(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "load", "missing", "--config", fn)
	require.NoError(t, err)
	assert.Contains(t, out, "fallback: true")
}

func TestLoadCommandStrictFailure(t *testing.T) {
	fn := setupFixture(t)
	_, err := runCLI(t, "load", "missing", "--config", fn, "--strict")
	assert.Error(t, err)

	out, err := runCLI(t, "load", "dashboard", "missing", "--config", fn, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 loads failed")
	assert.Contains(t, out, "resource: dashboard")
	assert.Contains(t, out, "error:")
}

func TestPreloadCommand(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "preload", "dashboard", "missing", "--config", fn)
	require.NoError(t, err)
	assert.Contains(t, out, "dashboard\ttrue")
	assert.Contains(t, out, "missing\tfalse")
}

func TestEventsCommandRequiresRedis(t *testing.T) {
	fn := setupFixture(t)
	_, err := runCLI(t, "events", "--config", fn)
	assert.ErrorContains(t, err, "events.redis_url")
}

func TestMissingConfig(t *testing.T) {
	_, err := runCLI(t, "candidates", "x", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadCommandMetrics(t *testing.T) {
	fn := setupFixture(t)
	out, err := runCLI(t, "load", "dashboard", "--config", fn, "--metrics", "--repeat", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "fragment_loads_total")
	assert.Contains(t, out, `outcome="fetched"`)
}
