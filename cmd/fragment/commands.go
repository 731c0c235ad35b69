package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/agentuity/go-fragment/env"
	"github.com/agentuity/go-fragment/eventing"
	"github.com/agentuity/go-fragment/loader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type loadSummary struct {
	Resource string            `yaml:"resource"`
	Target   string            `yaml:"target"`
	Source   string            `yaml:"source,omitempty"`
	Cached   bool              `yaml:"cached"`
	Fallback bool              `yaml:"fallback"`
	Attempts int               `yaml:"attempts"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
	Error    string            `yaml:"error,omitempty"`
}

type statsSummary struct {
	CacheSize int               `yaml:"cache_size"`
	Cached    []string          `yaml:"cached"`
	Hits      uint64            `yaml:"hits"`
	Misses    uint64            `yaml:"misses"`
	Current   map[string]string `yaml:"current,omitempty"`
	Previous  map[string]string `yaml:"previous,omitempty"`
}

func newLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <resource>...",
		Short: "Load one or more resources and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("target")
			a, err := newApp(cmd, target)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			var opts []loader.LoadOption
			if cmd.Flags().Changed("strict") {
				strict, _ := cmd.Flags().GetBool("strict")
				opts = append(opts, loader.Strict(strict))
			}
			if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
				opts = append(opts, loader.WithoutCache())
			}
			if repeat, _ := cmd.Flags().GetInt("repeat"); repeat > 1 {
				orig := args
				for range repeat - 1 {
					args = append(args, orig...)
				}
			}

			entries := make([]loader.Entry, len(args))
			for i, id := range args {
				entries[i] = loader.Entry{Resource: id, Target: target, Options: opts}
			}
			var summaries []loadSummary
			var failed int
			if len(entries) == 1 {
				res, err := a.loader.Load(ctx, entries[0].Resource, target, opts...)
				if err != nil {
					return err
				}
				summaries = append(summaries, summarize(res))
			} else {
				out := a.loader.LoadMany(ctx, entries)
				for _, res := range out.Successful {
					summaries = append(summaries, summarize(res))
				}
				for _, f := range out.Failed {
					summaries = append(summaries, loadSummary{Resource: f.Entry.Resource, Target: f.Entry.Target, Error: f.Err.Error()})
				}
				failed = len(out.Failed)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			if printContent, _ := cmd.Flags().GetBool("print"); printContent {
				t := target
				if t == "" {
					t = a.cfg.DefaultTarget
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.surface.Content(t))
			} else if err := enc.Encode(summaries); err != nil {
				return err
			}
			if stats, _ := cmd.Flags().GetBool("stats"); stats {
				st := a.loader.Stats(ctx)
				if err := enc.Encode(statsSummary{
					CacheSize: st.CacheSize,
					Cached:    st.CachedKeys,
					Hits:      st.Hits,
					Misses:    st.Misses,
					Current:   st.Current,
					Previous:  st.Previous,
				}); err != nil {
					return err
				}
			}
			if showMetrics, _ := cmd.Flags().GetBool("metrics"); showMetrics {
				if err := writeMetrics(cmd.OutOrStdout(), a.metrics.Registry()); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d loads failed", failed, len(entries))
			}
			return nil
		},
	}
	cmd.Flags().String("target", "", "target to inject into (defaults to default_target)")
	cmd.Flags().Bool("strict", false, "fail instead of injecting a fallback")
	cmd.Flags().Bool("no-cache", false, "bypass the cache")
	cmd.Flags().Bool("stats", false, "print loader stats after loading")
	cmd.Flags().Bool("print", false, "print the injected content instead of a summary")
	cmd.Flags().Bool("metrics", false, "print prometheus metrics after loading")
	cmd.Flags().Int("repeat", 1, "load the resources this many times")
	return cmd
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func summarize(res loader.Result) loadSummary {
	return loadSummary{
		Resource: res.Key.Resource,
		Target:   res.Key.Target,
		Source:   res.Source,
		Cached:   res.Cached,
		Fallback: res.Fallback,
		Attempts: res.Attempts,
		Metadata: res.Metadata,
	}
}

func newPreloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preload <resource>...",
		Short: "Fetch resources into the cache without injecting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)
			if err := a.loader.Preload(ctx, args...); err != nil {
				return err
			}
			for _, id := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", id, a.loader.IsLoaded(ctx, id))
			}
			return nil
		},
	}
}

func newCandidatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "candidates <resource>",
		Short: "Print the locations a resource is fetched from, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())
			for _, c := range a.loader.Candidates(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events [type]...",
		Short: "Print lifecycle events published by other loaders as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := env.NewLogger(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Events.RedisURL == "" {
				return fmt.Errorf("events.redis_url is not configured")
			}
			types := make([]eventing.Type, 0, len(args))
			for _, arg := range args {
				t := eventing.Type(arg)
				if !t.Valid() {
					return fmt.Errorf("%w: %s", eventing.ErrUnknownType, arg)
				}
				types = append(types, t)
			}
			client, err := newRedisClient(cfg.Events.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			enc := json.NewEncoder(os.Stdout)
			fwd := eventing.NewRedisForwarder(log, client, cfg.Events.SubjectPrefix)
			sub, err := fwd.Subscribe(ctx, func(_ context.Context, ev eventing.Event) {
				if err := enc.Encode(ev); err != nil {
					log.Warn("failed to write event: %s", err)
				}
			}, types...)
			if err != nil {
				return err
			}
			defer sub.Close()
			log.Info("listening for events on %s", fwd.Subject("*"))
			<-ctx.Done()
			return nil
		},
	}
}
