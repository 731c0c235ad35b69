package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRedisPrefix namespaces keys when no prefix is configured, so Clear
// never touches keys the store does not own.
const DefaultRedisPrefix = "fragment"

type redisStore struct {
	client *redis.Client
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a new Store backed by Redis.
// The caller owns the redis.Client lifecycle; Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Store {
	cfg := applyOptions(opts)
	if cfg.prefix == "" {
		cfg.prefix = DefaultRedisPrefix
	}
	return &redisStore{client: client, cfg: cfg}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

func (s *redisStore) prefixKey(key string) string {
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: failed to unmarshal entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, entry Entry) error {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal entry %s: %w", entry.Key, err)
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, s.prefixKey(entry.Key), data, 0).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Del(qctx, s.prefixKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) scan(ctx context.Context) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var keys []string
	iter := s.client.Scan(qctx, 0, s.cfg.prefix+":*", 100).Iterator()
	for iter.Next(qctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *redisStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Del(qctx, keys...).Err()
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.cfg.prefix+":")
	}
	return keys, nil
}

// Close is a no-op. The caller owns the redis.Client lifecycle.
func (s *redisStore) Close() error {
	return nil
}
