package loader

import (
	"github.com/agentuity/go-fragment/activate"
	"github.com/agentuity/go-fragment/cache"
	"github.com/agentuity/go-fragment/config"
	"github.com/agentuity/go-fragment/eventing"
	"github.com/agentuity/go-fragment/fetch"
	"github.com/agentuity/go-fragment/inject"
	"github.com/agentuity/go-fragment/logger"
)

type settings struct {
	log                logger.Logger
	source             fetch.Source
	store              cache.Store
	renderer           inject.Renderer
	notifier           activate.Notifier
	runtime            activate.Runtime
	initializers       *activate.Registry
	policy             fetch.Policy
	resolver           Resolver
	transition         inject.Transition
	strict             bool
	cache              bool
	defaultResource    string
	defaultTarget      string
	titles             map[string]string
	metrics            Metrics
	preloadConcurrency int
	sinks              []eventing.Sink
}

func defaultSettings() settings {
	cfg := config.Default()
	return settings{
		policy:             cfg.Policy(),
		resolver:           PathResolver{BasePaths: cfg.BasePaths, Extension: cfg.Extension},
		transition:         cfg.Transition(),
		cache:              cfg.Cache,
		defaultResource:    cfg.DefaultResource,
		defaultTarget:      cfg.DefaultTarget,
		metrics:            nopMetrics{},
		preloadConcurrency: cfg.PreloadConcurrency,
	}
}

// Option configures a Loader.
type Option func(*settings)

// WithConfig applies every loader setting held by cfg.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) {
		s.policy = cfg.Policy()
		s.resolver = PathResolver{BasePaths: cfg.BasePaths, Extension: cfg.Extension}
		s.transition = cfg.Transition()
		s.strict = cfg.Strict
		s.cache = cfg.Cache
		s.defaultResource = cfg.DefaultResource
		s.defaultTarget = cfg.DefaultTarget
		s.titles = cfg.Titles
		if cfg.PreloadConcurrency > 0 {
			s.preloadConcurrency = cfg.PreloadConcurrency
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithSource sets where fragments are fetched from. Required.
func WithSource(src fetch.Source) Option {
	return func(s *settings) { s.source = src }
}

// WithStore sets the cache backend. Defaults to cache.NewInMemory.
func WithStore(store cache.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithRenderer sets the surface content is injected into. Defaults to an
// empty surface.Surface.
func WithRenderer(r inject.Renderer) Option {
	return func(s *settings) { s.renderer = r }
}

// WithNotifier sets who receives the activation ready notification. Defaults
// to the renderer when it implements activate.Notifier.
func WithNotifier(n activate.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

func WithRuntime(rt activate.Runtime) Option {
	return func(s *settings) { s.runtime = rt }
}

func WithInitializers(r *activate.Registry) Option {
	return func(s *settings) { s.initializers = r }
}

func WithPolicy(p fetch.Policy) Option {
	return func(s *settings) { s.policy = p }
}

func WithResolver(r Resolver) Option {
	return func(s *settings) { s.resolver = r }
}

func WithTransition(t inject.Transition) Option {
	return func(s *settings) { s.transition = t }
}

// WithStrict sets the default strict mode for every load.
func WithStrict(strict bool) Option {
	return func(s *settings) { s.strict = strict }
}

// WithCache enables or disables caching for every load.
func WithCache(enabled bool) Option {
	return func(s *settings) { s.cache = enabled }
}

func WithDefaultResource(id string) Option {
	return func(s *settings) { s.defaultResource = id }
}

func WithDefaultTarget(target string) Option {
	return func(s *settings) { s.defaultTarget = target }
}

// WithTitles sets titles used when content carries none.
func WithTitles(titles map[string]string) Option {
	return func(s *settings) { s.titles = titles }
}

func WithMetrics(m Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func WithPreloadConcurrency(n int) Option {
	return func(s *settings) { s.preloadConcurrency = n }
}

// WithSink forwards every lifecycle event to sink.
func WithSink(sink eventing.Sink) Option {
	return func(s *settings) { s.sinks = append(s.sinks, sink) }
}

type loadOptions struct {
	useCache       bool
	strict         bool
	transform      func(string) string
	skipTransition bool
}

// LoadOption tunes a single Load.
type LoadOption func(*loadOptions)

// WithoutCache neither reads nor writes the cache for this load.
func WithoutCache() LoadOption {
	return func(o *loadOptions) { o.useCache = false }
}

// WithTransform rewrites content before injection. The cache keeps the raw content.
func WithTransform(fn func(string) string) LoadOption {
	return func(o *loadOptions) { o.transform = fn }
}

// Strict overrides the loader strict mode for this load.
func Strict(strict bool) LoadOption {
	return func(o *loadOptions) { o.strict = strict }
}

// SkipTransition swaps content without the exit and enter transition.
func SkipTransition() LoadOption {
	return func(o *loadOptions) { o.skipTransition = true }
}
