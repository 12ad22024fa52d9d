package cache

import "fmt"

// Key prefixes used for administrative enumeration.
const (
	CartMainPrefix       = "cart:main:"
	CartUserPrefix       = "cart:user:"
	CartItemMainPrefix   = "cart_item:main:"
	CartItemCartPrefix   = "cart_item:cart:"
	ItemOptionMainPrefix = "item_option:main:"
	ItemOptionItemPrefix = "item_option:cart_item:"
)

// CartKey is the primary key of a cart snapshot.
func CartKey(cartID string) string {
	return CartMainPrefix + cartID
}

// CartUserKey is the owner-scoped key of a cart snapshot.
// ok is false for guest carts, which have no owner-scoped entry.
func CartUserKey(userID *string) (key string, ok bool) {
	if userID == nil || *userID == "" {
		return "", false
	}
	return CartUserPrefix + *userID, true
}

// CartKeys returns every key a cart snapshot is published under.
func CartKeys(cartID string, userID *string) []string {
	keys := []string{CartKey(cartID)}
	if userKey, ok := CartUserKey(userID); ok {
		keys = append(keys, userKey)
	}
	return keys
}

func CartItemKey(itemID uint) string {
	return fmt.Sprintf("%s%d", CartItemMainPrefix, itemID)
}

func CartItemScopedKey(cartID string, itemID uint) string {
	return fmt.Sprintf("%s%s:%d", CartItemCartPrefix, cartID, itemID)
}

func CartItemKeys(cartID string, itemID uint) []string {
	return []string{CartItemKey(itemID), CartItemScopedKey(cartID, itemID)}
}

func ItemOptionKey(optionID uint) string {
	return fmt.Sprintf("%s%d", ItemOptionMainPrefix, optionID)
}

func ItemOptionScopedKey(itemID, optionID uint) string {
	return fmt.Sprintf("%s%d:%d", ItemOptionItemPrefix, itemID, optionID)
}

func ItemOptionKeys(itemID, optionID uint) []string {
	return []string{ItemOptionKey(optionID), ItemOptionScopedKey(itemID, optionID)}
}
