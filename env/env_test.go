package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentuity/go-fragment/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	vars := Parse(`
# fragment settings
FRAGMENT_BASE_URL=http://localhost:8080
export FRAGMENT_ROOT='./site'
FRAGMENT_BASE_PATHS="${FRAGMENT_ROOT}/pages,/components"
FRAGMENT_REDIS_URL=${UNDEFINED}
not a line
=novalue
`)
	assert.Equal(t, Vars{
		"FRAGMENT_BASE_URL":   "http://localhost:8080",
		"FRAGMENT_ROOT":       "./site",
		"FRAGMENT_BASE_PATHS": "./site/pages,/components",
		"FRAGMENT_REDIS_URL":  "${UNDEFINED}",
	}, vars)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(fn, []byte("FRAGMENT_STRICT=true\n"), 0o644))

	vars, err := ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, "true", vars["FRAGMENT_STRICT"])

	vars, err = ReadFile(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLookupPrefersProcessEnv(t *testing.T) {
	t.Setenv("FRAGMENT_TEST_LOOKUP", "process")
	vars := Vars{"FRAGMENT_TEST_LOOKUP": "file", "FRAGMENT_TEST_ONLY_FILE": "file"}
	lookup := vars.Lookup()

	v, ok := lookup("FRAGMENT_TEST_LOOKUP")
	assert.True(t, ok)
	assert.Equal(t, "process", v)
	v, ok = lookup("FRAGMENT_TEST_ONLY_FILE")
	assert.True(t, ok)
	assert.Equal(t, "file", v)
	_, ok = lookup("FRAGMENT_TEST_NOWHERE")
	assert.False(t, ok)
}

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("test-flag", "", "Test flag")

	cmd.Flags().Set("test-flag", "flag-value")
	assert.Equal(t, "flag-value", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))

	cmd.Flags().Set("test-flag", "")
	t.Setenv("TEST_ENV", "env-value")
	assert.Equal(t, "env-value", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))

	os.Unsetenv("TEST_ENV")
	assert.Equal(t, "default", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))
}

func TestLogLevel(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "Log level")

	testCases := []struct {
		name      string
		flagValue string
		envValue  string
		expected  logger.LogLevel
	}{
		{"debug level via flag", "debug", "", logger.LevelDebug},
		{"debug level via env", "", "DEBUG", logger.LevelDebug},
		{"warn level via flag", "warn", "", logger.LevelWarn},
		{"error level via env", "", "ERROR", logger.LevelError},
		{"trace level via flag", "trace", "", logger.LevelTrace},
		{"flag wins over env", "error", "debug", logger.LevelError},
		{"unknown falls back to info", "loud", "", logger.LevelInfo},
		{"default level", "", "", logger.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd.Flags().Set("log-level", tc.flagValue)
			if tc.envValue != "" {
				t.Setenv(logger.EnvLogLevel, tc.envValue)
			} else {
				os.Unsetenv(logger.EnvLogLevel)
			}
			assert.Equal(t, tc.expected, LogLevel(cmd))
		})
	}
}

func TestNewLogger(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().String("log-format", "", "Log format")

	cmd.Flags().Set("log-level", "warn")
	log := NewLogger(cmd)
	assert.True(t, log.IsLevelEnabled(logger.LevelWarn))
	assert.False(t, log.IsLevelEnabled(logger.LevelInfo))

	_, console := log.(logger.SinkLogger)
	assert.True(t, console)

	cmd.Flags().Set("log-format", "json")
	_, console = NewLogger(cmd).(logger.SinkLogger)
	assert.False(t, console)
}
