package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeBackfillsUpperLayer(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory()
	l2 := NewInMemory()
	c := NewComposite(l1, l2)

	assert.NoError(t, l2.Set(ctx, NewEntry("a", "from-l2", "")))
	entry, found, err := c.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-l2", entry.Content)

	_, found, _ = l1.Get(ctx, "a")
	assert.True(t, found)
}

func TestCompositeWritesAllLayers(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory()
	_, client := newTestRedis(t)
	defer client.Close()
	l2 := NewRedis(client, WithPrefix("composite"))
	c := NewComposite(l1, l2)

	assert.NoError(t, c.Set(ctx, NewEntry("a", "1", "")))
	_, found, _ := l1.Get(ctx, "a")
	assert.True(t, found)
	_, found, _ = l2.Get(ctx, "a")
	assert.True(t, found)

	keys, err := c.Keys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	found, err = c.Delete(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	_, found, _ = l2.Get(ctx, "a")
	assert.False(t, found)

	assert.NoError(t, c.Set(ctx, NewEntry("b", "2", "")))
	assert.NoError(t, c.Clear(ctx))
	keys, _ = c.Keys(ctx)
	assert.Empty(t, keys)
	assert.NoError(t, c.Close())
}

func TestCompositeRequiresStore(t *testing.T) {
	assert.Panics(t, func() { NewComposite() })
}
