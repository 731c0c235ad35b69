package cache

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/agentuity/go-fragment/logger"
)

// Token captures the generation of a key at the moment a fetch started.
type Token struct {
	key   string
	gen   uint64
	epoch uint64
}

// Key returns the key the token was issued for.
func (t Token) Key() string { return t.key }

// RequestCache is the loader's view of a Store: per-key generations, hit and
// miss accounting and degraded error handling.
type RequestCache struct {
	store Store
	log   logger.Logger

	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRequestCache wraps store. A nil store falls back to NewInMemory.
func NewRequestCache(store Store, log logger.Logger) *RequestCache {
	if store == nil {
		store = NewInMemory()
	}
	return &RequestCache{
		store: store,
		log:   logger.WithComponent(log, "cache"),
		gens:  make(map[string]uint64),
	}
}

// Begin issues a Token for key. Pass it to Put once the fetch completes.
func (c *RequestCache) Begin(key string) Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token{key: key, gen: c.gens[key], epoch: c.epoch}
}

func (c *RequestCache) current(t Token) bool {
	return c.gens[t.key] == t.gen && c.epoch == t.epoch
}

// Lookup returns the cached entry for key. Backend errors count as a miss.
func (c *RequestCache) Lookup(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed for %s, treating as miss: %s", key, err)
		ok = false
	}
	if ok {
		c.hits.Add(1)
		return entry, true
	}
	c.misses.Add(1)
	return Entry{}, false
}

// Peek returns the cached entry for key without touching the hit counters.
func (c *RequestCache) Peek(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Debug("cache read failed for %s: %s", key, err)
		return Entry{}, false
	}
	return entry, ok
}

// Has reports whether key is cached without touching the hit counters.
func (c *RequestCache) Has(ctx context.Context, key string) bool {
	_, ok := c.Peek(ctx, key)
	return ok
}

// Put stores entry if token is still current and reports whether it was
// written. An entry whose key was invalidated after token was issued is
// dropped.
func (c *RequestCache) Put(ctx context.Context, token Token, entry Entry) bool {
	entry.Key = token.key
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(token) {
		c.log.Debug("dropping stale write for %s", token.key)
		return false
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.log.Warn("cache write failed for %s: %s", token.key, err)
		return false
	}
	return true
}

// Invalidate removes key and voids every outstanding Token for it.
func (c *RequestCache) Invalidate(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	found, err := c.store.Delete(ctx, key)
	if err != nil {
		c.log.Warn("cache delete failed for %s: %s", key, err)
	}
	return found
}

// InvalidateAll removes every entry and voids every outstanding Token.
func (c *RequestCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	clear(c.gens)
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("cache clear failed: %s", err)
		return err
	}
	return nil
}

// Keys returns the cached keys in sorted order.
func (c *RequestCache) Keys(ctx context.Context) []string {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.log.Warn("cache keys failed: %s", err)
		return nil
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of cached entries.
func (c *RequestCache) Len(ctx context.Context) int {
	return len(c.Keys(ctx))
}

// Hits returns how many lookups were served from the store.
func (c *RequestCache) Hits() uint64 { return c.hits.Load() }

// Misses returns how many lookups missed.
func (c *RequestCache) Misses() uint64 { return c.misses.Load() }

// Close closes the underlying store.
func (c *RequestCache) Close() error {
	return c.store.Close()
}
