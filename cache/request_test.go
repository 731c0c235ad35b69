package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/agentuity/go-fragment/logger"
	"github.com/stretchr/testify/assert"
)

type failingStore struct {
	Store
	err error
}

func (s failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, s.err
}

func (s failingStore) Set(context.Context, Entry) error { return s.err }

func TestRequestCacheLookupCounts(t *testing.T) {
	ctx := context.Background()
	c := NewRequestCache(nil, logger.NewTestLogger())

	_, ok := c.Lookup(ctx, "a")
	assert.False(t, ok)
	assert.True(t, c.Put(ctx, c.Begin("a"), NewEntry("a", "1", "")))
	entry, ok := c.Lookup(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", entry.Content)

	assert.Equal(t, uint64(1), c.Hits())
	assert.Equal(t, uint64(1), c.Misses())
	assert.True(t, c.Has(ctx, "a"))
	assert.Equal(t, uint64(1), c.Hits())
}

func TestRequestCachePutUsesTokenKey(t *testing.T) {
	ctx := context.Background()
	c := NewRequestCache(nil, logger.NewTestLogger())
	assert.True(t, c.Put(ctx, c.Begin("a"), NewEntry("other", "1", "")))
	assert.Equal(t, []string{"a"}, c.Keys(ctx))
}

func TestRequestCacheInvalidationWins(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	c := NewRequestCache(nil, log)

	token := c.Begin("a")
	c.Invalidate(ctx, "a")
	assert.False(t, c.Put(ctx, token, NewEntry("a", "stale", "")))
	assert.False(t, c.Has(ctx, "a"))
	assert.Equal(t, 1, log.Count("DEBUG", "stale write"))

	assert.True(t, c.Put(ctx, c.Begin("a"), NewEntry("a", "fresh", "")))
	entry, ok := c.Lookup(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "fresh", entry.Content)
}

func TestRequestCacheInvalidateAllVoidsTokens(t *testing.T) {
	ctx := context.Background()
	c := NewRequestCache(nil, logger.NewTestLogger())

	assert.True(t, c.Put(ctx, c.Begin("a"), NewEntry("a", "1", "")))
	tokenB := c.Begin("b")
	c.Invalidate(ctx, "b")
	tokenB2 := c.Begin("b")

	assert.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, 0, c.Len(ctx))
	assert.False(t, c.Put(ctx, tokenB, NewEntry("b", "x", "")))
	assert.False(t, c.Put(ctx, tokenB2, NewEntry("b", "x", "")))
	assert.True(t, c.Put(ctx, c.Begin("b"), NewEntry("b", "y", "")))
}

func TestRequestCacheInvalidateOtherKeyKeepsToken(t *testing.T) {
	ctx := context.Background()
	c := NewRequestCache(nil, logger.NewTestLogger())
	token := c.Begin("a")
	c.Invalidate(ctx, "b")
	assert.True(t, c.Put(ctx, token, NewEntry("a", "1", "")))
}

func TestRequestCacheDegradesErrors(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	c := NewRequestCache(failingStore{Store: NewInMemory(), err: errors.New("boom")}, log)

	_, ok := c.Lookup(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Misses())
	assert.False(t, c.Put(ctx, c.Begin("a"), NewEntry("a", "1", "")))
	assert.Equal(t, 2, log.Count("WARNING", "boom"))
}

func TestRequestCacheConcurrentInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewRequestCache(nil, logger.NewTestLogger())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			token := c.Begin("a")
			c.Put(ctx, token, NewEntry("a", "v", ""))
		}()
		go func() {
			defer wg.Done()
			c.Invalidate(ctx, "a")
		}()
	}
	wg.Wait()
	c.Invalidate(ctx, "a")
	assert.False(t, c.Has(ctx, "a"))
}
