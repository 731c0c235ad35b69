// Package env resolves settings from cobra flags, the process environment
// and optional dotenv files.
package env

import (
	"os"
	"strings"

	"github.com/agentuity/go-fragment/logger"
	"github.com/spf13/cobra"
)

// Vars is a set of variables read from a dotenv file.
type Vars map[string]string

// ReadFile parses a dotenv file. A missing file yields no variables.
func ReadFile(filename string) (Vars, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Vars{}, nil
		}
		return nil, err
	}
	return Parse(string(buf)), nil
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Parse reads KEY=VALUE lines. Blank lines and lines starting with # are
// ignored, an "export " prefix is accepted and ${KEY} expands variables
// defined earlier in the same buffer.
func Parse(buf string) Vars {
	vars := Vars{}
	for _, line := range strings.Split(buf, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val = dequote(strings.TrimSpace(val))
		vars[key] = os.Expand(val, func(name string) string {
			if v, ok := vars[name]; ok {
				return v
			}
			return "${" + name + "}"
		})
	}
	return vars
}

// Lookup returns a lookup function checking the process environment first,
// then vars.
func (v Vars) Lookup() func(string) (string, bool) {
	return func(key string) (string, bool) {
		if val, ok := os.LookupEnv(key); ok {
			return val, true
		}
		val, ok := v[key]
		return val, ok
	}
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel reads the log-level flag, then FRAGMENT_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	return level
}

// NewLogger returns a console logger, or a JSON logger when the log-format
// flag or FRAGMENT_LOG_FORMAT is "json", at the level picked by LogLevel.
func NewLogger(cmd *cobra.Command) logger.Logger {
	level := LogLevel(cmd)
	if strings.EqualFold(FlagOrEnv(cmd, "log-format", "FRAGMENT_LOG_FORMAT", "console"), "json") {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}
