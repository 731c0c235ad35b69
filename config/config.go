// Package config holds the loader configuration, read from YAML and
// overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-fragment/fetch"
	"github.com/agentuity/go-fragment/inject"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var ErrConfigNotFound = errors.New("config file not found")

type Transitions struct {
	Enabled bool     `yaml:"enabled"`
	Exit    Duration `yaml:"exit"`
	Enter   Duration `yaml:"enter"`
}

type Redis struct {
	URL    string `yaml:"url,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Breaker enables a per-host circuit breaker in front of the fetch source.
type Breaker struct {
	Enabled     bool     `yaml:"enabled"`
	MaxFailures int      `yaml:"max_failures,omitempty"`
	Cooldown    Duration `yaml:"cooldown,omitempty"`
}

// Telemetry configures OTLP export of traces and logs.
type Telemetry struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	AuthToken   string `yaml:"auth_token,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
}

type Events struct {
	RedisURL      string `yaml:"redis_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// Config is the full loader configuration.
type Config struct {
	// BaseURL is the HTTP origin fragments are fetched from. When empty,
	// fragments are read from Root on the local file system.
	BaseURL            string            `yaml:"base_url,omitempty"`
	Root               string            `yaml:"root,omitempty"`
	BasePaths          []string          `yaml:"base_paths"`
	Extension          string            `yaml:"extension"`
	Timeout            Duration          `yaml:"timeout"`
	MaxAttempts        int               `yaml:"max_attempts"`
	RetryDelay         Duration          `yaml:"retry_delay"`
	Backoff            string            `yaml:"backoff"`
	MaxDelay           Duration          `yaml:"max_delay"`
	Strict             bool              `yaml:"strict"`
	Cache              bool              `yaml:"cache"`
	Transitions        Transitions       `yaml:"transitions"`
	DefaultResource    string            `yaml:"default_resource"`
	DefaultTarget      string            `yaml:"default_target"`
	PreloadConcurrency int               `yaml:"preload_concurrency"`
	Redis              Redis             `yaml:"redis,omitempty"`
	Events             Events            `yaml:"events,omitempty"`
	Breaker            Breaker           `yaml:"breaker,omitempty"`
	Telemetry          Telemetry         `yaml:"telemetry,omitempty"`
	Titles             map[string]string `yaml:"titles,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:        ".",
		BasePaths:   []string{"/fragments"},
		Extension:   "html",
		Timeout:     Duration(10 * time.Second),
		MaxAttempts: 3,
		RetryDelay:  Duration(time.Second),
		Backoff:     string(fetch.BackoffFixed),
		MaxDelay:    Duration(30 * time.Second),
		Cache:       true,
		Transitions: Transitions{
			Enabled: true,
			Exit:    Duration(150 * time.Millisecond),
			Enter:   Duration(150 * time.Millisecond),
		},
		DefaultResource:    "dashboard",
		DefaultTarget:      "page-content",
		PreloadConcurrency: 4,
		Breaker: Breaker{
			MaxFailures: 5,
			Cooldown:    Duration(30 * time.Second),
		},
		Telemetry: Telemetry{ServiceName: "fragment"},
	}
}

// Parse decodes YAML from r on top of Default and validates the result.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the YAML file at fn.
func Load(fn string) (Config, error) {
	of, err := os.Open(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, fn)
		}
		return Config{}, fmt.Errorf("failed to open config file: %s. %w", fn, err)
	}
	defer of.Close()
	cfg, err := Parse(of)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", fn, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if len(c.BasePaths) == 0 {
		result = multierror.Append(result, errors.New("base_paths must not be empty"))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, errors.New("timeout must be positive"))
	}
	if c.MaxAttempts < 1 {
		result = multierror.Append(result, errors.New("max_attempts must be at least 1"))
	}
	if c.RetryDelay < 0 {
		result = multierror.Append(result, errors.New("retry_delay must not be negative"))
	}
	if _, err := fetch.ParseBackoff(c.Backoff); err != nil {
		result = multierror.Append(result, err)
	}
	if c.PreloadConcurrency < 1 {
		result = multierror.Append(result, errors.New("preload_concurrency must be at least 1"))
	}
	if c.Breaker.Enabled && (c.Breaker.MaxFailures < 1 || c.Breaker.Cooldown <= 0) {
		result = multierror.Append(result, errors.New("breaker needs max_failures >= 1 and a positive cooldown"))
	}
	if c.Transitions.Exit < 0 || c.Transitions.Enter < 0 {
		result = multierror.Append(result, errors.New("transition delays must not be negative"))
	}
	return result.ErrorOrNil()
}

// Env variables read by ApplyEnv.
const (
	EnvBaseURL        = "FRAGMENT_BASE_URL"
	EnvRoot           = "FRAGMENT_ROOT"
	EnvBasePaths      = "FRAGMENT_BASE_PATHS"
	EnvTimeout        = "FRAGMENT_TIMEOUT"
	EnvMaxAttempts    = "FRAGMENT_MAX_ATTEMPTS"
	EnvRetryDelay     = "FRAGMENT_RETRY_DELAY"
	EnvStrict         = "FRAGMENT_STRICT"
	EnvRedisURL       = "FRAGMENT_REDIS_URL"
	EnvEventsRedisURL = "FRAGMENT_EVENTS_REDIS_URL"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPToken      = "FRAGMENT_OTLP_TOKEN"
)

// ApplyEnv overrides fields from lookup, typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var result *multierror.Error
	if v, ok := lookup(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvRoot); ok {
		c.Root = v
	}
	if v, ok := lookup(EnvBasePaths); ok {
		c.BasePaths = splitList(v)
	}
	if v, ok := lookup(EnvTimeout); ok {
		d, err := ParseDuration(v)
		result = appendErr(result, EnvTimeout, err)
		if err == nil {
			c.Timeout = d
		}
	}
	if v, ok := lookup(EnvRetryDelay); ok {
		d, err := ParseDuration(v)
		result = appendErr(result, EnvRetryDelay, err)
		if err == nil {
			c.RetryDelay = d
		}
	}
	if v, ok := lookup(EnvMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		result = appendErr(result, EnvMaxAttempts, err)
		if err == nil {
			c.MaxAttempts = n
		}
	}
	if v, ok := lookup(EnvStrict); ok {
		b, err := strconv.ParseBool(v)
		result = appendErr(result, EnvStrict, err)
		if err == nil {
			c.Strict = b
		}
	}
	if v, ok := lookup(EnvRedisURL); ok {
		c.Redis.URL = v
	}
	if v, ok := lookup(EnvEventsRedisURL); ok {
		c.Events.RedisURL = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok {
		c.Telemetry.Endpoint = v
	}
	if v, ok := lookup(EnvOTLPToken); ok {
		c.Telemetry.AuthToken = v
	}
	return result.ErrorOrNil()
}

func appendErr(result *multierror.Error, name string, err error) *multierror.Error {
	if err == nil {
		return result
	}
	return multierror.Append(result, fmt.Errorf("%s: %w", name, err))
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Policy returns the retry policy described by the configuration.
func (c Config) Policy() fetch.Policy {
	backoff, _ := fetch.ParseBackoff(c.Backoff)
	return fetch.Policy{
		Timeout:     c.Timeout.Std(),
		MaxAttempts: c.MaxAttempts,
		Delay:       c.RetryDelay.Std(),
		Backoff:     backoff,
		MaxDelay:    c.MaxDelay.Std(),
	}
}

// BreakerSettings returns the circuit breaker settings.
func (c Config) BreakerSettings() fetch.BreakerSettings {
	return fetch.BreakerSettings{
		MaxFailures: uint32(c.Breaker.MaxFailures),
		Cooldown:    c.Breaker.Cooldown.Std(),
	}
}

// Transition returns the injector transition settings.
func (c Config) Transition() inject.Transition {
	return inject.Transition{
		Enabled: c.Transitions.Enabled,
		Exit:    c.Transitions.Exit.Std(),
		Enter:   c.Transitions.Enter.Std(),
	}
}

// Title returns the configured title for resource, if any.
func (c Config) Title(resource string) string {
	return c.Titles[resource]
}
