package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentuity/go-fragment/cache"
	"github.com/agentuity/go-fragment/config"
	"github.com/agentuity/go-fragment/env"
	"github.com/agentuity/go-fragment/eventing"
	"github.com/agentuity/go-fragment/fetch"
	"github.com/agentuity/go-fragment/loader"
	"github.com/agentuity/go-fragment/logger"
	"github.com/agentuity/go-fragment/metrics"
	"github.com/agentuity/go-fragment/surface"
	"github.com/agentuity/go-fragment/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fragment",
		Short:         "Fetch, cache and inject HTML fragments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file (env FRAGMENT_CONFIG)")
	flags.String("env-file", ".env", "dotenv file read before the config is applied")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (env "+logger.EnvLogLevel+")")
	flags.String("log-format", "", "log format: console or json (env FRAGMENT_LOG_FORMAT)")

	root.AddCommand(newLoadCommand(), newPreloadCommand(), newCandidatesCommand(), newEventsCommand())
	return root
}

// loadConfig reads the config file, the dotenv file and the environment, in
// that order of increasing precedence.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if fn := env.FlagOrEnv(cmd, "config", "FRAGMENT_CONFIG", ""); fn != "" {
		loaded, err := config.Load(fn)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	vars, err := env.ReadFile(envFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	if err := cfg.ApplyEnv(vars.Lookup()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

type app struct {
	cfg     config.Config
	log     logger.Logger
	loader  *loader.Loader
	surface *surface.Surface
	metrics *metrics.Collector
	closers []func() error
}

func (a *app) Close(ctx context.Context) {
	if err := a.loader.Close(ctx); err != nil {
		a.log.Warn("failed to close loader: %s", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close: %s", err)
		}
	}
}

func newSource(cfg config.Config, log logger.Logger) (fetch.Source, error) {
	var src fetch.Source = fetch.DirSource{FS: os.DirFS(cfg.Root)}
	if cfg.BaseURL != "" {
		httpSource, err := fetch.NewHTTPSource(cfg.BaseURL, &http.Client{})
		if err != nil {
			return nil, err
		}
		src = httpSource
	}
	if cfg.Breaker.Enabled {
		src = fetch.NewBreakerSource(src, cfg.BreakerSettings(), log)
	}
	return src, nil
}

// newApp wires a Loader from the resolved configuration. targets are created
// on the in-memory surface in addition to the default target.
func newApp(cmd *cobra.Command, targets ...string) (*app, error) {
	log := env.NewLogger(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	if cfg.Telemetry.Endpoint != "" {
		tel, err := telemetry.New(cmd.Context(), telemetry.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			AuthToken:   cfg.Telemetry.AuthToken,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			return nil, err
		}
		tel.Install()
		log = log.Stack(tel.Logger(env.LogLevel(cmd)))
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return tel.Shutdown(ctx)
		})
	}
	src, err := newSource(cfg, log)
	if err != nil {
		return nil, err
	}
	s := surface.New(cfg.DefaultTarget)
	for _, t := range targets {
		if t != "" {
			s.AddTarget(t)
		}
	}
	a := &app{
		cfg:     cfg,
		log:     log,
		surface: s,
		metrics: metrics.NewCollector("fragment"),
		closers: closers,
	}

	opts := []loader.Option{
		loader.WithConfig(cfg),
		loader.WithLogger(log),
		loader.WithSource(src),
		loader.WithRenderer(a.surface),
		loader.WithMetrics(a.metrics),
	}

	if cfg.Redis.URL != "" {
		client, err := newRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, loader.WithStore(cache.NewComposite(
			cache.NewInMemory(),
			cache.NewRedis(client, cache.WithPrefix(cfg.Redis.Prefix)),
		)))
		log.Debug("using redis cache at %s", client.Options().Addr)
	}

	if cfg.Events.RedisURL != "" {
		client, err := newRedisClient(cfg.Events.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, loader.WithSink(eventing.NewRedisForwarder(log, client, cfg.Events.SubjectPrefix)))
	}

	l, err := loader.New(opts...)
	if err != nil {
		return nil, err
	}
	a.loader = l
	return a, nil
}
