package cache

import (
	"context"
	"slices"
)

type compositeStore struct {
	stores []Store
}

var _ Store = (*compositeStore)(nil)

// NewComposite returns a Store that chains multiple stores together.
// Get checks stores in order and returns the first hit.
// Set, Delete and Clear apply to all stores.
// At least one store must be provided; panics if empty.
func NewComposite(stores ...Store) Store {
	if len(stores) == 0 {
		panic("cache: NewComposite requires at least one store")
	}
	return &compositeStore{stores: stores}
}

func (c *compositeStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	for i, store := range c.stores {
		entry, found, err := store.Get(ctx, key)
		if err != nil {
			return Entry{}, false, err
		}
		if found {
			// backfill the faster layers that missed
			for _, upper := range c.stores[:i] {
				_ = upper.Set(ctx, entry)
			}
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (c *compositeStore) Set(ctx context.Context, entry Entry) error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Set(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeStore) Delete(ctx context.Context, key string) (bool, error) {
	anyFound := false
	var firstErr error
	for _, store := range c.stores {
		found, err := store.Delete(ctx, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		anyFound = anyFound || found
	}
	return anyFound, firstErr
}

func (c *compositeStore) Clear(ctx context.Context) error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Clear(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Keys returns the union of keys across all layers.
func (c *compositeStore) Keys(ctx context.Context) ([]string, error) {
	var all []string
	for _, store := range c.stores {
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, keys...)
	}
	slices.Sort(all)
	return slices.Compact(all), nil
}

func (c *compositeStore) Close() error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
