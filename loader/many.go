package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LoadMany starts every entry at once and waits for all of them. It never
// fails as a whole: each entry lands in Successful or Failed, in input order.
func (l *Loader) LoadMany(ctx context.Context, entries []Entry) ManyResult {
	results := make([]Result, len(entries))
	errs := make([]error, len(entries))

	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Go(func() {
			results[i], errs[i] = l.Load(ctx, e.Resource, e.Target, e.Options...)
		})
	}
	wg.Wait()

	var out ManyResult
	for i, e := range entries {
		if errs[i] != nil {
			out.Failed = append(out.Failed, Failure{Entry: e, Err: errs[i]})
			continue
		}
		out.Successful = append(out.Successful, results[i])
	}
	return out
}

// Preload fetches resources into the cache without injecting them. Cached or
// in-flight resources are skipped and failures are only logged.
func (l *Loader) Preload(ctx context.Context, resources ...string) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.useCache {
		l.log.Debug("caching disabled, skipping preload of %d resources", len(resources))
		return nil
	}
	var g errgroup.Group
	g.SetLimit(l.preloadConcurrency)
	for _, resource := range resources {
		if l.cache.Has(ctx, resource) {
			continue
		}
		if _, pending := l.fetches.Lookup(resource); pending {
			continue
		}
		g.Go(func() error {
			f, _, err := l.fetches.Do(ctx, resource, func(ctx context.Context) (fetched, error) {
				return l.fetch(ctx, resource, true)
			})
			switch {
			case err != nil:
				l.log.Warn("preload failed for %s: %s", resource, err)
			case f.fallback:
				l.log.Warn("preload failed for %s: %s", resource, f.cause)
			default:
				l.log.Debug("preloaded %s", resource)
			}
			return nil
		})
	}
	return g.Wait()
}
