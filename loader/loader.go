// Package loader is the public entry point of the fragment pipeline. A
// Loader deduplicates concurrent loads, serves repeats from the cache,
// fetches with retries and candidate fallback, injects the content into a
// target, activates its scripts and reports every step as an event.
//
// A Loader is an explicit instance: create it with New, share it, and
// release it with Close. Nothing is kept in package globals.
package loader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-fragment/activate"
	"github.com/agentuity/go-fragment/cache"
	"github.com/agentuity/go-fragment/eventing"
	"github.com/agentuity/go-fragment/fetch"
	"github.com/agentuity/go-fragment/flight"
	"github.com/agentuity/go-fragment/inject"
	"github.com/agentuity/go-fragment/logger"
	"github.com/agentuity/go-fragment/metrics"
	"github.com/agentuity/go-fragment/surface"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// fetched is the outcome shared by every load waiting on one fetch.
type fetched struct {
	content  string
	source   string
	cached   bool
	attempts int
	fallback bool
	cause    error
}

// Loader composes the cache, in-flight registries, fetch engine, injector,
// activator and event hub.
type Loader struct {
	log       logger.Logger
	cache     *cache.RequestCache
	engine    *fetch.Engine
	injector  *inject.Injector
	activator *activate.Activator
	hub       *eventing.Hub
	renderer  inject.Renderer
	resolver  Resolver
	metrics   Metrics

	strict             bool
	useCache           bool
	defaultResource    string
	defaultTarget      string
	titles             map[string]string
	preloadConcurrency int

	loads   *flight.Registry[Result]
	fetches *flight.Registry[fetched]
	closed  atomic.Bool

	mu       sync.Mutex
	current  map[string]string
	previous map[string]string
	// seqs counts invalidations per resource#target key. A run only writes
	// its target while the count it started with is unchanged.
	seqs map[string]uint64
}

// New builds a Loader. WithSource is required.
func New(opts ...Option) (*Loader, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if s.source == nil {
		return nil, ErrNoSource
	}
	if s.log == nil {
		s.log = logger.NewConsoleLogger(logger.LevelNone)
	}
	if s.renderer == nil {
		s.renderer = surface.New()
	}
	if s.notifier == nil {
		if n, ok := s.renderer.(activate.Notifier); ok {
			s.notifier = n
		}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.preloadConcurrency < 1 {
		s.preloadConcurrency = 1
	}
	if s.initializers == nil {
		s.initializers = activate.NewRegistry()
	}

	l := &Loader{
		log:                logger.WithComponent(s.log, "loader"),
		cache:              cache.NewRequestCache(s.store, s.log),
		renderer:           s.renderer,
		resolver:           s.resolver,
		metrics:            s.metrics,
		strict:             s.strict,
		useCache:           s.cache,
		defaultResource:    s.defaultResource,
		defaultTarget:      s.defaultTarget,
		titles:             s.titles,
		preloadConcurrency: s.preloadConcurrency,
		loads:              flight.NewRegistry[Result](),
		fetches:            flight.NewRegistry[fetched](),
		current:            make(map[string]string),
		previous:           make(map[string]string),
		seqs:               make(map[string]uint64),
	}
	l.engine = fetch.NewEngine(s.source,
		fetch.WithPolicy(s.policy),
		fetch.WithLogger(s.log),
		fetch.WithObserver(func(a fetch.Attempt) { l.metrics.ObserveAttempt(a.Duration, a.Err) }),
	)
	l.injector = inject.New(s.renderer, s.transition, s.log)
	l.activator = activate.New(s.runtime, s.initializers, s.notifier, s.log)
	l.hub = eventing.NewHub(s.log)
	for _, sink := range s.sinks {
		l.hub.AddSink(sink)
	}
	return l, nil
}

func (l *Loader) loadOptions(opts []LoadOption) loadOptions {
	o := loadOptions{useCache: l.useCache, strict: l.strict}
	for _, opt := range opts {
		opt(&o)
	}
	o.useCache = o.useCache && l.useCache
	return o
}

// Candidates returns the locations tried for resource, in order.
func (l *Loader) Candidates(resource string) []string {
	return l.resolver.Candidates(resource)
}

// Load fetches resource, injects it into target and activates its scripts.
// An empty target selects the default target. Concurrent loads of the same
// resource and target share one run and observe the same outcome; the
// options of the call that started the run apply.
func (l *Loader) Load(ctx context.Context, resource, target string, opts ...LoadOption) (Result, error) {
	if l.closed.Load() {
		return Result{}, ErrClosed
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return Result{}, ErrEmptyResource
	}
	if target == "" {
		target = l.defaultTarget
	}
	key := ResourceKey{Resource: resource, Target: target}
	o := l.loadOptions(opts)

	ctx, span := tracer.Start(ctx, "Load", trace.WithAttributes(
		attribute.String("fragment.resource", resource),
		attribute.String("fragment.target", target),
	))
	defer span.End()

	if err := l.injector.Check(target); err != nil {
		lerr := &LoadError{Key: key, Err: err}
		l.emitFailed(ctx, key, lerr, 0, false)
		span.RecordError(lerr)
		span.SetStatus(codes.Error, lerr.Error())
		return Result{}, lerr
	}

	res, shared, err := l.loads.Do(ctx, key.String(), func(ctx context.Context) (Result, error) {
		return l.run(ctx, key, o)
	})
	l.metrics.SetInFlight(l.loads.Len())
	span.SetAttributes(attribute.Bool("fragment.shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("fragment.cached", res.Cached), attribute.Bool("fragment.fallback", res.Fallback))
	span.SetStatus(codes.Ok, "loaded")
	return res, nil
}

func (l *Loader) run(ctx context.Context, key ResourceKey, o loadOptions) (Result, error) {
	started := time.Now()
	current := l.currentFunc(key)
	l.metrics.SetInFlight(l.loads.Len())
	l.hub.Emit(ctx, eventing.Event{Type: eventing.LoadStarted, Resource: key.Resource, Target: key.Target})

	f, err := l.content(ctx, key, o)
	if err == nil && f.fallback && o.strict {
		err = f.cause
	}
	if err != nil {
		return Result{}, l.fail(ctx, key, err, f.attempts, started, current)
	}

	final, err := l.injector.Inject(ctx, key.Target, key.Resource, f.content, inject.Options{
		Transform:      o.transform,
		SkipTransition: o.skipTransition,
		Current:        current,
	})
	if errors.Is(err, inject.ErrSuperseded) {
		return l.superseded(key, f, started), nil
	}
	if err != nil {
		lerr := &LoadError{Key: key, AttemptsMade: f.attempts, LastCause: err, Err: err}
		l.emitFailed(ctx, key, lerr, f.attempts, false)
		l.metrics.LoadFinished(key.Resource, metrics.OutcomeFailed, time.Since(started))
		return Result{}, lerr
	}

	meta := activate.ExtractMetadata(final)
	if _, ok := meta["title"]; !ok {
		if title := l.titles[key.Resource]; title != "" {
			meta["title"] = title
		}
	}
	res := Result{
		Key:       key,
		Content:   final,
		Source:    f.source,
		Timestamp: time.Now(),
		Metadata:  meta,
		Cached:    f.cached,
		Fallback:  f.fallback,
		Attempts:  f.attempts,
	}

	if f.fallback {
		meta["fallback"] = "true"
		l.log.Warn("loaded fallback for %s into %s", key.Resource, key.Target)
		l.emitFailed(ctx, key, f.cause, f.attempts, true)
		l.metrics.LoadFinished(key.Resource, metrics.OutcomeFallback, time.Since(started))
		return res, nil
	}

	res.Scripts = l.activator.Activate(ctx, key.Target, key.Resource, final)
	l.setCurrent(key.Target, key.Resource)

	l.hub.Emit(ctx, eventing.Event{
		Type:     eventing.LoadSucceeded,
		Resource: key.Resource,
		Target:   key.Target,
		Metadata: meta,
		Cached:   f.cached,
		Attempts: f.attempts,
	})
	outcome := metrics.OutcomeFetched
	if f.cached {
		outcome = metrics.OutcomeCached
	}
	l.metrics.LoadFinished(key.Resource, outcome, time.Since(started))
	l.log.Debug("loaded %s into %s (cached=%v attempts=%d)", key.Resource, key.Target, f.cached, f.attempts)
	return res, nil
}

// currentFunc reports whether a run for key started now is still the newest
// one. Invalidate advances the sequence and retires every older run.
func (l *Loader) currentFunc(key ResourceKey) func() bool {
	k := key.String()
	l.mu.Lock()
	seq := l.seqs[k]
	l.mu.Unlock()
	return func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.seqs[k] == seq
	}
}

// superseded settles a run whose target was claimed by a newer load. Its
// waiters get the content, but nothing is written, activated or announced.
func (l *Loader) superseded(key ResourceKey, f fetched, started time.Time) Result {
	l.log.Debug("load of %s into %s superseded, target left untouched", key.Resource, key.Target)
	l.metrics.LoadFinished(key.Resource, metrics.OutcomeSuperseded, time.Since(started))
	return Result{
		Key:        key,
		Content:    f.content,
		Source:     f.source,
		Timestamp:  time.Now(),
		Metadata:   activate.ExtractMetadata(f.content),
		Cached:     f.cached,
		Fallback:   f.fallback,
		Attempts:   f.attempts,
		Superseded: true,
	}
}

// content returns the raw content for key, from the cache when allowed,
// otherwise from the fetch shared by every load of the same resource.
func (l *Loader) content(ctx context.Context, key ResourceKey, o loadOptions) (fetched, error) {
	if o.useCache {
		entry, ok := l.cache.Lookup(ctx, key.Resource)
		l.metrics.CacheLookup(ok)
		if ok {
			return fetched{content: entry.Content, source: entry.Source, cached: true}, nil
		}
	}
	l.renderer.SetMarker(key.Target, inject.MarkerLoading, true)
	defer l.renderer.SetMarker(key.Target, inject.MarkerLoading, false)

	f, _, err := l.fetches.Do(ctx, key.Resource, func(ctx context.Context) (fetched, error) {
		return l.fetch(ctx, key.Resource, o.useCache)
	})
	return f, err
}

// fetch runs one network fetch for resource. The cache write happens before
// the in-flight slot is cleared and is dropped if resource was invalidated
// meanwhile.
func (l *Loader) fetch(ctx context.Context, resource string, useCache bool) (fetched, error) {
	token := l.cache.Begin(resource)
	if useCache {
		if entry, ok := l.cache.Peek(ctx, resource); ok {
			return fetched{content: entry.Content, source: entry.Source, cached: true}, nil
		}
	}
	res, err := l.engine.FetchOrFallback(ctx, resource, l.resolver.Candidates(resource), false)
	if err != nil {
		return fetched{attempts: res.Attempts}, err
	}
	if res.Fallback {
		return fetched{content: res.Content, attempts: res.Attempts, fallback: true, cause: res.Cause}, nil
	}
	if useCache {
		l.cache.Put(ctx, token, cache.NewEntry(resource, res.Content, res.Location))
	}
	return fetched{content: res.Content, source: res.Location, attempts: res.Attempts}, nil
}

func (l *Loader) fail(ctx context.Context, key ResourceKey, err error, attempts int, started time.Time, current func() bool) *LoadError {
	lerr := &LoadError{Key: key, AttemptsMade: attempts, LastCause: err, Err: err}
	var exhausted *fetch.ExhaustedError
	if errors.As(err, &exhausted) {
		lerr.AttemptsMade = exhausted.Attempts
		lerr.LastCause = exhausted.LastCause
		lerr.ExhaustedCandidates = exhausted.Candidates
		panel := ErrorPanel(key.Resource, l.defaultResource, err)
		if _, ierr := l.injector.Inject(ctx, key.Target, key.Resource, panel, inject.Options{SkipTransition: true, Current: current}); ierr != nil && !errors.Is(ierr, inject.ErrSuperseded) {
			l.log.Warn("failed to render error panel for %s: %s", key.Resource, ierr)
		}
	}
	l.log.Error("failed to load %s into %s: %s", key.Resource, key.Target, err)
	l.emitFailed(ctx, key, lerr, lerr.AttemptsMade, false)
	l.metrics.LoadFinished(key.Resource, metrics.OutcomeFailed, time.Since(started))
	return lerr
}

func (l *Loader) emitFailed(ctx context.Context, key ResourceKey, err error, attempts int, fallback bool) {
	ev := eventing.Event{
		Type:     eventing.LoadFailed,
		Resource: key.Resource,
		Target:   key.Target,
		Attempts: attempts,
		Fallback: fallback,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	l.hub.Emit(ctx, ev)
}

func (l *Loader) setCurrent(target, resource string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.current[target]; ok && cur != resource {
		l.previous[target] = cur
	}
	l.current[target] = resource
}

// Reload invalidates resource and loads it again.
func (l *Loader) Reload(ctx context.Context, resource, target string, opts ...LoadOption) (Result, error) {
	if err := l.Invalidate(ctx, resource); err != nil {
		return Result{}, err
	}
	return l.Load(ctx, resource, target, opts...)
}

// Invalidate removes the given resources from the cache, or everything when
// none is given. Loads already running for them still settle for their
// callers but can no longer populate the cache or write their target, and
// the next Load starts a fresh fetch.
func (l *Loader) Invalidate(ctx context.Context, resources ...string) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if len(resources) == 0 {
		all := func(string) bool { return true }
		err := l.cache.InvalidateAll(ctx)
		l.fetches.ForgetFunc(all)
		l.retire(all)
		l.loads.ForgetFunc(all)
		return err
	}
	for _, resource := range resources {
		l.cache.Invalidate(ctx, resource)
		l.fetches.Forget(resource)
		match := func(k string) bool {
			return k == resource || strings.HasPrefix(k, resource+"#")
		}
		l.retire(match)
		l.loads.ForgetFunc(match)
	}
	return nil
}

// retire advances the sequence of every running load whose key matches, so
// none of them writes its target once it settles.
func (l *Loader) retire(match func(key string) bool) {
	keys := l.loads.Keys()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if match(k) {
			l.seqs[k]++
		}
	}
}

// IsLoaded reports whether resource is cached.
func (l *Loader) IsLoaded(ctx context.Context, resource string) bool {
	return l.cache.Has(ctx, resource)
}

// Stats returns a snapshot of the cache and in-flight state.
func (l *Loader) Stats(ctx context.Context) Stats {
	keys := l.cache.Keys(ctx)
	l.mu.Lock()
	current := make(map[string]string, len(l.current))
	for k, v := range l.current {
		current[k] = v
	}
	previous := make(map[string]string, len(l.previous))
	for k, v := range l.previous {
		previous[k] = v
	}
	l.mu.Unlock()
	return Stats{
		CacheSize:       len(keys),
		InFlightCount:   l.loads.Len(),
		FetchesInFlight: l.fetches.Len(),
		CachedKeys:      keys,
		InFlightKeys:    l.loads.Keys(),
		Hits:            l.cache.Hits(),
		Misses:          l.cache.Misses(),
		Current:         current,
		Previous:        previous,
	}
}

// On registers handler for events of type t.
func (l *Loader) On(t eventing.Type, handler eventing.Handler) (eventing.Subscription, error) {
	return l.hub.On(t, handler)
}

// Off removes a handler registered with On.
func (l *Loader) Off(sub eventing.Subscription) bool {
	return l.hub.Off(sub)
}

// Emit publishes ev to the loader's handlers and sinks.
func (l *Loader) Emit(ctx context.Context, ev eventing.Event) {
	l.hub.Emit(ctx, ev)
}

// Close rejects further operations, drops every handler and clears the cache.
func (l *Loader) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.hub.Close()
	var result *multierror.Error
	if err := l.cache.InvalidateAll(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := l.cache.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
