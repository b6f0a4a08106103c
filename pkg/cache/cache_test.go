package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, c Cache) {
	ctx := context.Background()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a1", true, 0))
	require.NoError(t, c.Set(ctx, "a2", "x", time.Minute))

	v, ok := c.Get(ctx, "a1")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	assert.True(t, c.Exists(ctx, "a2"))
	assert.False(t, c.Exists(ctx, "a3"))

	keys := c.Keys(ctx)
	sort.Strings(keys)
	assert.Equal(t, []string{"a1", "a2"}, keys)

	require.NoError(t, c.Delete(ctx, "a2"))
	assert.False(t, c.Exists(ctx, "a2"))

	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, c.Keys(ctx))
}

func TestGoCache(t *testing.T) {
	exercise(t, NewGoCache(0))
}

func TestLRUCache(t *testing.T) {
	exercise(t, NewLRUCache(16, 0))
}

func TestLRUEvicts(t *testing.T) {
	c := NewLRUCache(2, 0)
	ctx := context.Background()
	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)
	_ = c.Set(ctx, "c", 3, 0)
	assert.False(t, c.Exists(ctx, "a"))
	assert.True(t, c.Exists(ctx, "c"))
}

func TestFactory(t *testing.T) {
	c, err := NewCache(Config{Type: "lru", LRUSize: 8})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}
