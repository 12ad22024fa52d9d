// Package snapshot builds the nested, cache-ready documents of a cart aggregate.
// Builders are pure: they never touch the store or the cache.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ikkim/cart-sync/internal/app/model"
)

// TimeLayout is the ISO-8601 layout used for every snapshot timestamp (always UTC).
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type Cart struct {
	ID         string  `json:"id"`
	UserID     *string `json:"user_id"`
	CartItems  []Item  `json:"cart_items"`
	CreatedAt  string  `json:"created_at"`
	ModifiedAt string  `json:"modified_at"`
}

type Item struct {
	ID          string   `json:"id"`
	CartID      string   `json:"cart_id"`
	ProdID      string   `json:"prod_id"`
	Quantity    int      `json:"quantity"`
	IsActive    bool     `json:"is_active"`
	CreatedAt   string   `json:"created_at"`
	ModifiedAt  string   `json:"modified_at"`
	ItemOptions []Option `json:"item_options"`
}

type Option struct {
	ID         string `json:"id"`
	CartItemID string `json:"cart_item_id"`
	Attribute  string `json:"attribute"`
	Value      string `json:"value"`
	CreatedAt  string `json:"created_at"`
	ModifiedAt string `json:"modified_at"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// BuildCart renders the cart with its active items, in the order given.
func BuildCart(cart *model.Cart, items []model.CartItem) Cart {
	out := Cart{
		ID:         cart.ID,
		CartItems:  make([]Item, 0, len(items)),
		CreatedAt:  FormatTime(cart.CreatedAt),
		ModifiedAt: FormatTime(cart.ModifiedAt),
	}
	if !cart.IsGuest() {
		owner := *cart.UserID
		out.UserID = &owner
	}
	for i := range items {
		if !items[i].IsActive {
			continue
		}
		out.CartItems = append(out.CartItems, BuildItem(&items[i]))
	}
	return out
}

func BuildItem(item *model.CartItem) Item {
	out := Item{
		ID:          formatID(item.ID),
		CartID:      item.CartID,
		ProdID:      item.ProdID,
		Quantity:    item.Quantity,
		IsActive:    item.IsActive,
		CreatedAt:   FormatTime(item.CreatedAt),
		ModifiedAt:  FormatTime(item.ModifiedAt),
		ItemOptions: make([]Option, 0, len(item.ItemOptions)),
	}
	for i := range item.ItemOptions {
		out.ItemOptions = append(out.ItemOptions, BuildOption(&item.ItemOptions[i]))
	}
	return out
}

func BuildOption(opt *model.ItemOption) Option {
	return Option{
		ID:         formatID(opt.ID),
		CartItemID: formatID(opt.CartItemID),
		Attribute:  opt.Attribute,
		Value:      opt.Value,
		CreatedAt:  FormatTime(opt.CreatedAt),
		ModifiedAt: FormatTime(opt.ModifiedAt),
	}
}

// FindItem returns the first item with the given id.
func (c *Cart) FindItem(itemID string) (*Item, int) {
	for i := range c.CartItems {
		if c.CartItems[i].ID == itemID {
			return &c.CartItems[i], i
		}
	}
	return nil, -1
}

// Clone returns a deep copy that shares no slices or pointers with c.
func (c *Cart) Clone() *Cart {
	out := *c
	if c.UserID != nil {
		owner := *c.UserID
		out.UserID = &owner
	}
	if c.CartItems != nil {
		out.CartItems = make([]Item, len(c.CartItems))
		for i := range c.CartItems {
			out.CartItems[i] = c.CartItems[i]
			if c.CartItems[i].ItemOptions != nil {
				out.CartItems[i].ItemOptions = make([]Option, len(c.CartItems[i].ItemOptions))
				copy(out.CartItems[i].ItemOptions, c.CartItems[i].ItemOptions)
			}
		}
	}
	return &out
}

// Model reconstructs the durable models described by the snapshot.
func (c *Cart) Model() (*model.Cart, []model.CartItem, error) {
	created, err := ParseTime(c.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("cart %s created_at: %w", c.ID, err)
	}
	modified, err := ParseTime(c.ModifiedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("cart %s modified_at: %w", c.ID, err)
	}

	cart := &model.Cart{ID: c.ID, CreatedAt: created, ModifiedAt: modified}
	if c.UserID != nil {
		owner := *c.UserID
		cart.UserID = &owner
	}

	items := make([]model.CartItem, 0, len(c.CartItems))
	for i := range c.CartItems {
		item, err := c.CartItems[i].Model()
		if err != nil {
			return nil, nil, err
		}
		items = append(items, *item)
	}
	return cart, items, nil
}

func (it *Item) Model() (*model.CartItem, error) {
	id, err := parseID(it.ID)
	if err != nil {
		return nil, fmt.Errorf("cart item id: %w", err)
	}
	created, err := ParseTime(it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("cart item %s created_at: %w", it.ID, err)
	}
	modified, err := ParseTime(it.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("cart item %s modified_at: %w", it.ID, err)
	}

	item := &model.CartItem{
		ID:          id,
		CartID:      it.CartID,
		ProdID:      it.ProdID,
		Quantity:    it.Quantity,
		IsActive:    it.IsActive,
		CreatedAt:   created,
		ModifiedAt:  modified,
		ItemOptions: make([]model.ItemOption, 0, len(it.ItemOptions)),
	}
	for i := range it.ItemOptions {
		opt, err := it.ItemOptions[i].Model()
		if err != nil {
			return nil, err
		}
		item.ItemOptions = append(item.ItemOptions, *opt)
	}
	return item, nil
}

func (o *Option) Model() (*model.ItemOption, error) {
	id, err := parseID(o.ID)
	if err != nil {
		return nil, fmt.Errorf("item option id: %w", err)
	}
	itemID, err := parseID(o.CartItemID)
	if err != nil {
		return nil, fmt.Errorf("item option %s cart_item_id: %w", o.ID, err)
	}
	created, err := ParseTime(o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("item option %s created_at: %w", o.ID, err)
	}
	modified, err := ParseTime(o.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("item option %s modified_at: %w", o.ID, err)
	}
	return &model.ItemOption{
		ID:         id,
		CartItemID: itemID,
		Attribute:  o.Attribute,
		Value:      o.Value,
		CreatedAt:  created,
		ModifiedAt: modified,
	}, nil
}

// Encode and Decode are the cache wire format.

func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func DecodeCart(data []byte) (*Cart, error) {
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	if c.CartItems == nil {
		c.CartItems = []Item{}
	}
	return &c, nil
}

func DecodeItem(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode cart item snapshot: %w", err)
	}
	if it.ItemOptions == nil {
		it.ItemOptions = []Option{}
	}
	return &it, nil
}

func DecodeOption(data []byte) (*Option, error) {
	var o Option
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode item option snapshot: %w", err)
	}
	return &o, nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
