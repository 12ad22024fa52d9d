package service

import (
	"context"
	"errors"

	"github.com/ikkim/cart-sync/internal/app/model"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/pkg/logger"
)

// publisher writes snapshots through to the cache after a durable commit.
// Cache failures are logged and dropped; only store reads can fail a publish.
type publisher struct {
	repo  repository.CartRepository
	cache cache.Cache
}

func newPublisher(repo repository.CartRepository, c cache.Cache) *publisher {
	return &publisher{repo: repo, cache: c}
}

func (p *publisher) put(ctx context.Context, value interface{}, keys ...string) {
	data, err := snapshot.Encode(value)
	if err != nil {
		logger.Error("Failed to encode snapshot", err, map[string]interface{}{
			"keys": keys,
		})
		return
	}
	for _, key := range keys {
		if err := p.cache.Set(ctx, key, data); err != nil {
			logger.Error("Failed to publish snapshot", err, map[string]interface{}{
				"key":         key,
				"unavailable": cache.IsUnavailable(err),
			})
		}
	}
}

func (p *publisher) evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := p.cache.Delete(ctx, keys...); err != nil {
		logger.Error("Failed to evict snapshots", err, map[string]interface{}{
			"keys": keys,
		})
	}
}

func (p *publisher) publishOption(ctx context.Context, opt *model.ItemOption) {
	p.put(ctx, snapshot.BuildOption(opt), cache.ItemOptionKeys(opt.CartItemID, opt.ID)...)
}

func (p *publisher) publishItem(ctx context.Context, item *model.CartItem) {
	p.put(ctx, snapshot.BuildItem(item), cache.CartItemKeys(item.CartID, item.ID)...)
}

func (p *publisher) publishCart(ctx context.Context, cart *model.Cart, items []model.CartItem) *snapshot.Cart {
	snap := snapshot.BuildCart(cart, items)
	p.put(ctx, snap, cache.CartKeys(cart.ID, cart.UserID)...)
	return &snap
}

// publishTree publishes every option, then every item, then the cart.
func (p *publisher) publishTree(ctx context.Context, cart *model.Cart, items []model.CartItem) *snapshot.Cart {
	for i := range items {
		for j := range items[i].ItemOptions {
			p.publishOption(ctx, &items[i].ItemOptions[j])
		}
	}
	for i := range items {
		p.publishItem(ctx, &items[i])
	}
	return p.publishCart(ctx, cart, items)
}

func (p *publisher) evictItem(ctx context.Context, item *model.CartItem) {
	keys := cache.CartItemKeys(item.CartID, item.ID)
	for _, opt := range item.ItemOptions {
		keys = append(keys, cache.ItemOptionKeys(item.ID, opt.ID)...)
	}
	p.evict(ctx, keys...)
}

func (p *publisher) evictCart(ctx context.Context, cart *model.Cart) {
	p.evict(ctx, cache.CartKeys(cart.ID, cart.UserID)...)
}

// loadCart reads the cart and its active items from the store.
func (p *publisher) loadCart(ctx context.Context, cartID string) (*model.Cart, []model.CartItem, error) {
	cart, err := p.repo.FindCartByID(ctx, cartID)
	if err != nil {
		return nil, nil, storeError(err, "cart", cartID)
	}
	items, err := p.repo.FindItemsByCartID(ctx, cartID, true)
	if err != nil {
		return nil, nil, storeError(err, "cart items of cart", cartID)
	}
	return cart, items, nil
}

// rebuildCart re-reads the cart from the store and republishes its snapshot.
func (p *publisher) rebuildCart(ctx context.Context, cartID string) (*snapshot.Cart, error) {
	cart, items, err := p.loadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return p.publishCart(ctx, cart, items), nil
}

// rebuildItem re-reads the item from the store and republishes it, optionally with its options first.
func (p *publisher) rebuildItem(ctx context.Context, itemID uint, withOptions bool) (*model.CartItem, error) {
	item, err := p.repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "cart item", formatItemID(itemID))
	}
	if withOptions {
		for i := range item.ItemOptions {
			p.publishOption(ctx, &item.ItemOptions[i])
		}
	}
	p.publishItem(ctx, item)
	return item, nil
}

// cached fetches and decodes a snapshot. Any cache failure is reported as a miss.
func cached[T any](ctx context.Context, c cache.Cache, key string, decode func([]byte) (*T, error)) (*T, bool) {
	data, err := c.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("Cache read failed, falling back to store", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false
	}
	v, err := decode(data)
	if err != nil {
		logger.Warn("Discarding malformed snapshot", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	return v, true
}
