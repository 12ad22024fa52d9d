package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	_, err := c.Get(ctx, "cart:main:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "cart:main:1", []byte(`{"id":"1"}`)))
	val, err := c.Get(ctx, "cart:main:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(val))

	require.NoError(t, c.Delete(ctx, "cart:main:1", "cart:user:missing"))
	_, err = c.Get(ctx, "cart:main:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	for _, k := range []string{"cart:main:b", "cart:main:a", "cart:user:1", "cart_item:main:1"} {
		require.NoError(t, c.Set(ctx, k, []byte("{}")))
	}

	keys, err := c.Keys(ctx, CartMainPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"cart:main:a", "cart:main:b"}, keys)

	keys, err = c.Keys(ctx, "cart:")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestMemoryCache_EntryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "cart_item:main:1", []byte("{}")))
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "cart_item:main:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf))
	buf[0] = 'x'

	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(val))
}
