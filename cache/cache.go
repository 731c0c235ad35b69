package cache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is an immutable snapshot of fetched content for one resource.
type Entry struct {
	Key       string    `msgpack:"key"`
	Content   string    `msgpack:"content"`
	Source    string    `msgpack:"source"`
	FetchedAt time.Time `msgpack:"fetched_at"`
	Checksum  uint64    `msgpack:"checksum"`
}

// NewEntry builds an Entry stamped with the current time and a content checksum.
func NewEntry(key, content, source string) Entry {
	return Entry{
		Key:       key,
		Content:   content,
		Source:    source,
		FetchedAt: time.Now(),
		Checksum:  Checksum(content),
	}
}

// Checksum returns the xxhash digest used to fingerprint content.
func Checksum(content string) uint64 {
	return xxhash.Sum64String(content)
}

type Store interface {
	// Get returns the entry for key, if any.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores entry under entry.Key, replacing any previous entry.
	Set(ctx context.Context, entry Entry) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Clear removes every entry owned by the store.
	Clear(ctx context.Context) error
	// Keys returns the stored keys in no particular order.
	Keys(ctx context.Context) ([]string, error)
	// Close releases resources owned by the store.
	Close() error
}

// DefaultQueryTimeout is the per-operation timeout for stores that perform
// I/O. Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	prefix       string
}

// Option configures a Store implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithPrefix sets the key prefix for namespacing keys. Applies to the Redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}
