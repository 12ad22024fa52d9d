package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestCartKeys(t *testing.T) {
	assert.Equal(t, "cart:main:abc", CartKey("abc"))

	key, ok := CartUserKey(strPtr("42"))
	assert.True(t, ok)
	assert.Equal(t, "cart:user:42", key)

	assert.Equal(t, []string{"cart:main:abc", "cart:user:42"}, CartKeys("abc", strPtr("42")))
}

func TestCartKeys_GuestHasNoOwnerKey(t *testing.T) {
	_, ok := CartUserKey(nil)
	assert.False(t, ok)

	_, ok = CartUserKey(strPtr(""))
	assert.False(t, ok)

	keys := CartKeys("abc", nil)
	assert.Equal(t, []string{"cart:main:abc"}, keys)
	for _, k := range keys {
		assert.NotContains(t, k, "None")
		assert.NotContains(t, k, "<nil>")
	}
}

func TestItemAndOptionKeys(t *testing.T) {
	assert.Equal(t, "cart_item:main:7", CartItemKey(7))
	assert.Equal(t, "cart_item:cart:abc:7", CartItemScopedKey("abc", 7))
	assert.Equal(t, []string{"cart_item:main:7", "cart_item:cart:abc:7"}, CartItemKeys("abc", 7))

	assert.Equal(t, "item_option:main:9", ItemOptionKey(9))
	assert.Equal(t, "item_option:cart_item:7:9", ItemOptionScopedKey(7, 9))
	assert.Equal(t, []string{"item_option:main:9", "item_option:cart_item:7:9"}, ItemOptionKeys(7, 9))
}
