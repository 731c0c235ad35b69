package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisSetGet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedis(client, WithPrefix("test"))
	defer s.Close()

	_, found, err := s.Get(ctx, "header")
	assert.NoError(t, err)
	assert.False(t, found)

	entry := NewEntry("header", "<div>H</div>", "/header.html")
	assert.NoError(t, s.Set(ctx, entry))
	assert.True(t, mr.Exists("test:header"))

	got, found, err := s.Get(ctx, "header")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.Source, got.Source)
	assert.Equal(t, entry.Checksum, got.Checksum)
	assert.True(t, entry.FetchedAt.Equal(got.FetchedAt))
}

func TestRedisDefaultPrefix(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedis(client)

	assert.NoError(t, s.Set(ctx, NewEntry("a", "1", "")))
	assert.True(t, mr.Exists(DefaultRedisPrefix+":a"))
}

func TestRedisKeysAndClearStayInPrefix(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedis(client, WithPrefix("test"))

	assert.NoError(t, mr.Set("other:key", "untouched"))
	assert.NoError(t, s.Set(ctx, NewEntry("a", "1", "")))
	assert.NoError(t, s.Set(ctx, NewEntry("b", "2", "")))

	keys, err := s.Keys(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	found, err := s.Delete(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)

	assert.NoError(t, s.Clear(ctx))
	keys, err = s.Keys(ctx)
	assert.NoError(t, err)
	assert.Empty(t, keys)
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedis(client, WithPrefix("test"))

	assert.NoError(t, mr.Set("test:bad", "\xc1"))
	_, found, err := s.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedis(client, WithPrefix("test"))
	mr.Close()

	_, found, err := s.Get(ctx, "a")
	assert.Error(t, err)
	assert.False(t, found)
}
