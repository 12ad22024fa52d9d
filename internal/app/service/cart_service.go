package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ikkim/cart-sync/internal/app/matching"
	"github.com/ikkim/cart-sync/internal/app/model"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/pkg/logger"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// OptionInput is one attribute/value selection on an item being added.
type OptionInput struct {
	Attribute string `json:"attribute" binding:"required"`
	Value     string `json:"value" binding:"required"`
}

// maxRelockAttempts bounds how often a listing follows an item that merges keep moving.
const maxRelockAttempts = 3

// CartLookup selects a cart by id, falling back to the owner's cart.
type CartLookup struct {
	CartID string
	UserID string
}

// CartService is the single write path of the cart aggregate. Every mutation commits to the
// store first and then republishes the affected snapshots, options before items before carts.
type CartService interface {
	CreateCart(ctx context.Context, userID *string) (*model.Cart, error)
	AddItem(ctx context.Context, cartID, prodID string, quantity int, options []OptionInput) (*model.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID string, itemID uint, quantity int) (*model.CartItem, error)
	DeleteItem(ctx context.Context, cartID string, itemID uint) error
	DeleteItemOption(ctx context.Context, optionID uint) error
	DeleteCart(ctx context.Context, cartID string) error
	GetCart(ctx context.Context, lookup CartLookup) (*snapshot.Cart, error)
	GetItem(ctx context.Context, cartID string, itemID uint) (*snapshot.Item, error)

	ListCarts(ctx context.Context) ([]snapshot.Cart, error)
	ListItems(ctx context.Context) ([]snapshot.Item, error)
	ListOptions(ctx context.Context) ([]snapshot.Option, error)
	RebuildAll(ctx context.Context) (int, error)
	PurgeGuestCarts(ctx context.Context, cutoff time.Time) (int, error)
}

type cartService struct {
	repo   repository.CartRepository
	cache  cache.Cache
	pub    *publisher
	locks  *CartLocker
	merges MergeService
	reads  singleflight.Group
}

func NewCartService(
	repo repository.CartRepository,
	c cache.Cache,
	locks *CartLocker,
	merges MergeService,
) CartService {
	return &cartService{
		repo:   repo,
		cache:  c,
		pub:    newPublisher(repo, c),
		locks:  locks,
		merges: merges,
	}
}

func (s *cartService) CreateCart(ctx context.Context, userID *string) (*model.Cart, error) {
	if userID != nil && *userID == "" {
		userID = nil
	}

	logger.Info("Creating cart", map[string]interface{}{
		"user_id": userID,
	})

	if userID != nil {
		var unlock func()
		ctx, unlock = s.locks.Lock(ctx, userLockKey(*userID))
		defer unlock()
	}

	cart := &model.Cart{UserID: userID}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		logger.Error("Failed to create cart", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, fmt.Errorf("create cart: %w", err)
	}
	s.pub.publishCart(ctx, cart, nil)

	logger.Info("Cart created successfully", map[string]interface{}{
		"cart_id": cart.ID,
		"guest":   cart.IsGuest(),
	})
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cartID, prodID string, quantity int, options []OptionInput) (*model.CartItem, error) {
	if err := positiveQuantity("quantity", quantity); err != nil {
		return nil, err
	}
	if prodID == "" {
		return nil, &ValidationError{Field: "prod_id", Reason: "is required"}
	}
	for _, o := range options {
		if o.Attribute == "" || o.Value == "" {
			return nil, &ValidationError{Field: "item_options", Reason: "attribute and value are required"}
		}
	}

	logger.Info("Adding item to cart", map[string]interface{}{
		"cart_id":  cartID,
		"prod_id":  prodID,
		"quantity": quantity,
		"options":  len(options),
	})

	if cartID == "" {
		cart, err := s.CreateCart(ctx, nil)
		if err != nil {
			return nil, err
		}
		cartID = cart.ID
	}

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	cart, items, err := s.pub.loadCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("Cannot add item: cart not found", map[string]interface{}{
				"cart_id": cartID,
			})
		}
		return nil, err
	}

	current := snapshot.BuildCart(cart, items)
	candidate := matching.Candidate{ProdID: prodID, Options: optionPairs(options)}
	if match := matching.SubsetMatch(current.CartItems, candidate); match != nil {
		itemID, err := parseItemID(match.ID)
		if err != nil {
			return nil, err
		}
		logger.Debug("Existing cart item matched, summing quantity", map[string]interface{}{
			"cart_id":      cartID,
			"cart_item_id": itemID,
			"old_qty":      match.Quantity,
			"delta":        quantity,
		})
		return s.merges.AddQuantity(ctx, cartID, itemID, quantity)
	}

	item := &model.CartItem{
		CartID:      cartID,
		ProdID:      prodID,
		Quantity:    quantity,
		IsActive:    true,
		ItemOptions: make([]model.ItemOption, 0, len(options)),
	}
	for _, o := range options {
		item.ItemOptions = append(item.ItemOptions, model.ItemOption{Attribute: o.Attribute, Value: o.Value})
	}

	err = s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cartID)
	})
	if err != nil {
		logger.Error("Failed to create cart item", err, map[string]interface{}{
			"cart_id": cartID,
			"prod_id": prodID,
		})
		return nil, storeError(err, "cart", cartID)
	}

	created, err := s.pub.rebuildItem(ctx, item.ID, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.pub.rebuildCart(ctx, cartID); err != nil {
		return nil, err
	}

	logger.Info("Cart item added successfully", map[string]interface{}{
		"cart_id":      cartID,
		"cart_item_id": created.ID,
	})
	return created, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cartID string, itemID uint, quantity int) (*model.CartItem, error) {
	if err := positiveQuantity("quantity", quantity); err != nil {
		return nil, err
	}

	logger.Info("Updating cart item quantity", map[string]interface{}{
		"cart_id":      cartID,
		"cart_item_id": itemID,
		"quantity":     quantity,
	})

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	if _, err := s.findCartItem(ctx, cartID, itemID); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		if err := tx.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cartID)
	})
	if err != nil {
		logger.Error("Failed to update cart item quantity", err, map[string]interface{}{
			"cart_item_id": itemID,
		})
		return nil, storeError(err, "cart item", formatItemID(itemID))
	}

	updated, err := s.pub.rebuildItem(ctx, itemID, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.pub.rebuildCart(ctx, cartID); err != nil {
		return nil, err
	}

	logger.Info("Cart item quantity updated", map[string]interface{}{
		"cart_item_id": itemID,
		"quantity":     updated.Quantity,
	})
	return updated, nil
}

func (s *cartService) DeleteItem(ctx context.Context, cartID string, itemID uint) error {
	logger.Info("Removing cart item", map[string]interface{}{
		"cart_id":      cartID,
		"cart_item_id": itemID,
	})

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	item, err := s.findCartItem(ctx, cartID, itemID)
	if err != nil {
		return err
	}

	err = s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cartID)
	})
	if err != nil {
		logger.Error("Failed to delete cart item", err, map[string]interface{}{
			"cart_item_id": itemID,
		})
		return storeError(err, "cart item", formatItemID(itemID))
	}

	s.pub.evictItem(ctx, item)
	if _, err := s.pub.rebuildCart(ctx, cartID); err != nil {
		return err
	}

	logger.Info("Cart item removed", map[string]interface{}{
		"cart_item_id": itemID,
	})
	return nil
}

func (s *cartService) DeleteItemOption(ctx context.Context, optionID uint) error {
	logger.Info("Removing item option", map[string]interface{}{
		"item_option_id": optionID,
	})

	opt, err := s.repo.FindOptionByID(ctx, optionID)
	if err != nil {
		return storeError(err, "item option", formatItemID(optionID))
	}
	item, err := s.repo.FindItemByID(ctx, opt.CartItemID)
	if err != nil {
		return storeError(err, "cart item", formatItemID(opt.CartItemID))
	}
	cartID := item.CartID

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	// the item may have been re-parented by a merge before the lock was taken
	item, err = s.repo.FindItemByID(ctx, opt.CartItemID)
	if err != nil {
		return storeError(err, "cart item", formatItemID(opt.CartItemID))
	}
	if item.CartID != cartID {
		logger.Warn("Cart item moved while removing option", map[string]interface{}{
			"item_option_id": optionID,
			"from_cart_id":   cartID,
			"to_cart_id":     item.CartID,
		})
		return &ConflictError{Entity: "cart item", ID: formatItemID(item.ID), Reason: "moved to another cart"}
	}

	err = s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		if err := tx.DeleteOption(ctx, optionID); err != nil {
			return storeError(err, "item option", formatItemID(optionID))
		}
		if err := tx.TouchItem(ctx, opt.CartItemID); err != nil {
			return storeError(err, "cart item", formatItemID(opt.CartItemID))
		}
		if err := tx.TouchCart(ctx, cartID); err != nil {
			return storeError(err, "cart", cartID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.pub.evict(ctx, cache.ItemOptionKeys(opt.CartItemID, optionID)...)
	if _, err := s.pub.rebuildItem(ctx, opt.CartItemID, false); err != nil {
		return err
	}
	if _, err := s.pub.rebuildCart(ctx, cartID); err != nil {
		return err
	}

	logger.Info("Item option removed", map[string]interface{}{
		"item_option_id": optionID,
		"cart_item_id":   opt.CartItemID,
	})
	return nil
}

// DeleteCart removes the cart and its cart-level keys. Item and option keys of the removed
// items are left to expire with the cache entry TTL.
func (s *cartService) DeleteCart(ctx context.Context, cartID string) error {
	logger.Info("Deleting cart", map[string]interface{}{
		"cart_id": cartID,
	})

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	cart, err := s.repo.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Cart not found for deletion", map[string]interface{}{
				"cart_id": cartID,
			})
		}
		return storeError(err, "cart", cartID)
	}

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		return storeError(err, "cart", cartID)
	}
	s.pub.evictCart(ctx, cart)

	logger.Info("Cart deleted", map[string]interface{}{
		"cart_id": cartID,
	})
	return nil
}

func (s *cartService) GetCart(ctx context.Context, lookup CartLookup) (*snapshot.Cart, error) {
	if lookup.CartID == "" && lookup.UserID == "" {
		return nil, &ValidationError{Field: "cart", Reason: "cart id or user id is required"}
	}

	if lookup.CartID != "" {
		if snap, ok := cached(ctx, s.cache, cache.CartKey(lookup.CartID), snapshot.DecodeCart); ok {
			return snap, nil
		}
	}
	if lookup.UserID != "" {
		key, _ := cache.CartUserKey(&lookup.UserID)
		if snap, ok := cached(ctx, s.cache, key, snapshot.DecodeCart); ok {
			return snap, nil
		}
	}

	// the shared load must not fail for every waiter when the first caller goes away
	flight := "cart:" + lookup.CartID + "|user:" + lookup.UserID
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := s.reads.Do(flight, func() (interface{}, error) {
		return s.loadAndPublish(loadCtx, lookup)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Cart snapshot served from store", map[string]interface{}{
		"cart_id": lookup.CartID,
		"user_id": lookup.UserID,
		"shared":  shared,
	})
	return v.(*snapshot.Cart).Clone(), nil
}

func (s *cartService) loadAndPublish(ctx context.Context, lookup CartLookup) (*snapshot.Cart, error) {
	var (
		cart *model.Cart
		err  = gorm.ErrRecordNotFound
	)
	if lookup.CartID != "" {
		cart, err = s.repo.FindCartByID(ctx, lookup.CartID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && lookup.UserID != "" {
		cart, err = s.repo.FindCartByUserID(ctx, lookup.UserID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Cart not found", map[string]interface{}{
				"cart_id": lookup.CartID,
				"user_id": lookup.UserID,
			})
			id := lookup.CartID
			if id == "" {
				id = "of user " + lookup.UserID
			}
			return nil, &NotFoundError{Entity: "cart", ID: id}
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cart.ID))
	defer unlock()

	return s.pub.rebuildCart(ctx, cart.ID)
}

// GetItem reads the item by its primary key, then by its cart-scoped key, then from the store.
func (s *cartService) GetItem(ctx context.Context, cartID string, itemID uint) (*snapshot.Item, error) {
	if item, ok := cached(ctx, s.cache, cache.CartItemKey(itemID), snapshot.DecodeItem); ok {
		if cartID == "" || item.CartID == cartID {
			return item, nil
		}
	}
	if cartID != "" {
		if item, ok := cached(ctx, s.cache, cache.CartItemScopedKey(cartID, itemID), snapshot.DecodeItem); ok {
			return item, nil
		}
	}

	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "cart item", formatItemID(itemID))
	}
	if (cartID != "" && item.CartID != cartID) || !item.IsActive {
		return nil, &NotFoundError{Entity: "cart item", ID: formatItemID(itemID)}
	}
	s.pub.publishItem(ctx, item)

	snap := snapshot.BuildItem(item)
	return &snap, nil
}

// ListCarts enumerates the carts in the store and serves each one from its cached snapshot,
// rebuilding the snapshot when the key has expired.
func (s *cartService) ListCarts(ctx context.Context) ([]snapshot.Cart, error) {
	rows, err := s.repo.FindCarts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list carts: %w", err)
	}

	carts := make([]snapshot.Cart, 0, len(rows))
	rebuilt := 0
	for i := range rows {
		if snap, ok := cached(ctx, s.cache, cache.CartKey(rows[i].ID), snapshot.DecodeCart); ok {
			carts = append(carts, *snap)
			continue
		}
		snap, err := s.republishCart(ctx, rows[i].ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		carts = append(carts, *snap)
		rebuilt++
	}

	if rebuilt > 0 {
		logger.Debug("Rebuilt expired cart snapshots while listing", map[string]interface{}{
			"rebuilt": rebuilt,
			"total":   len(carts),
		})
	}
	return carts, nil
}

func (s *cartService) republishCart(ctx context.Context, cartID string) (*snapshot.Cart, error) {
	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()
	return s.pub.rebuildCart(ctx, cartID)
}

func (s *cartService) ListItems(ctx context.Context) ([]snapshot.Item, error) {
	rows, err := s.repo.FindItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}

	items := make([]snapshot.Item, 0, len(rows))
	for i := range rows {
		if item, ok := cached(ctx, s.cache, cache.CartItemKey(rows[i].ID), snapshot.DecodeItem); ok {
			items = append(items, *item)
			continue
		}

		var snap *snapshot.Item
		err := s.withItemLocked(ctx, rows[i].ID, rows[i].CartID, func(ctx context.Context, item *model.CartItem) error {
			if !item.IsActive {
				return nil
			}
			s.pub.publishItem(ctx, item)
			built := snapshot.BuildItem(item)
			snap = &built
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if snap != nil {
			items = append(items, *snap)
		}
	}
	return items, nil
}

func (s *cartService) ListOptions(ctx context.Context) ([]snapshot.Option, error) {
	rows, err := s.repo.FindOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list item options: %w", err)
	}

	opts := make([]snapshot.Option, 0, len(rows))
	for i := range rows {
		if opt, ok := cached(ctx, s.cache, cache.ItemOptionKey(rows[i].ID), snapshot.DecodeOption); ok {
			opts = append(opts, *opt)
			continue
		}

		optionID := rows[i].ID
		var snap *snapshot.Option
		err := s.withItemLocked(ctx, rows[i].CartItemID, "", func(ctx context.Context, item *model.CartItem) error {
			if !item.IsActive {
				return nil
			}
			opt, err := s.repo.FindOptionByID(ctx, optionID)
			if err != nil {
				return storeError(err, "item option", formatItemID(optionID))
			}
			s.pub.publishOption(ctx, opt)
			built := snapshot.BuildOption(opt)
			snap = &built
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if snap != nil {
			opts = append(opts, *snap)
		}
	}
	return opts, nil
}

// withItemLocked re-reads the item under the lock of the cart that holds it and runs fn.
// A merge may move the item between the read and the lock, so the lock follows it.
func (s *cartService) withItemLocked(ctx context.Context, itemID uint, cartID string, fn func(context.Context, *model.CartItem) error) error {
	if cartID == "" {
		item, err := s.repo.FindItemByID(ctx, itemID)
		if err != nil {
			return storeError(err, "cart item", formatItemID(itemID))
		}
		cartID = item.CartID
	}

	for attempt := 0; attempt < maxRelockAttempts; attempt++ {
		lctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
		item, err := s.repo.FindItemByID(lctx, itemID)
		if err != nil {
			unlock()
			return storeError(err, "cart item", formatItemID(itemID))
		}
		if item.CartID != cartID {
			unlock()
			cartID = item.CartID
			continue
		}
		err = fn(lctx, item)
		unlock()
		return err
	}
	return &ConflictError{Entity: "cart item", ID: formatItemID(itemID), Reason: "kept moving between carts"}
}

// RebuildAll republishes every cart tree from the store.
func (s *cartService) RebuildAll(ctx context.Context) (int, error) {
	carts, err := s.repo.FindCarts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list carts: %w", err)
	}

	for i := range carts {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		s.rebuildTree(ctx, carts[i].ID)
	}

	logger.Info("Cart snapshots rebuilt", map[string]interface{}{
		"carts": len(carts),
	})
	return len(carts), nil
}

func (s *cartService) rebuildTree(ctx context.Context, cartID string) {
	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	cart, items, err := s.pub.loadCart(ctx, cartID)
	if err != nil {
		logger.Warn("Skipping cart during rebuild", map[string]interface{}{
			"cart_id": cartID,
			"error":   err.Error(),
		})
		return
	}
	s.pub.publishTree(ctx, cart, items)
}

// PurgeGuestCarts removes guest carts untouched since cutoff. Items are deleted one by one so
// their keys are evicted before the cart itself goes.
func (s *cartService) PurgeGuestCarts(ctx context.Context, cutoff time.Time) (int, error) {
	carts, err := s.repo.FindGuestCartsModifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find expired guest carts: %w", err)
	}

	purged := 0
	for i := range carts {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		ok, err := s.purgeGuestCart(ctx, carts[i].ID, cutoff)
		if err != nil {
			logger.Error("Failed to purge guest cart", err, map[string]interface{}{
				"cart_id": carts[i].ID,
			})
			continue
		}
		if ok {
			purged++
		}
	}

	logger.Info("Expired guest carts purged", map[string]interface{}{
		"cutoff": cutoff,
		"found":  len(carts),
		"purged": purged,
	})
	return purged, nil
}

func (s *cartService) purgeGuestCart(ctx context.Context, cartID string, cutoff time.Time) (bool, error) {
	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	cart, err := s.repo.FindCartByID(ctx, cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cart.IsGuest() || !cart.ModifiedAt.Before(cutoff) {
		return false, nil
	}

	items, err := s.repo.FindItemsByCartID(ctx, cartID, false)
	if err != nil {
		return false, err
	}
	for i := range items {
		if err := s.repo.DeleteItem(ctx, items[i].ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		s.pub.evictItem(ctx, &items[i])
	}

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		return false, err
	}
	s.pub.evictCart(ctx, cart)
	return true, nil
}

func (s *cartService) findCartItem(ctx context.Context, cartID string, itemID uint) (*model.CartItem, error) {
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Cart item not found", map[string]interface{}{
				"cart_id":      cartID,
				"cart_item_id": itemID,
			})
		}
		return nil, storeError(err, "cart item", formatItemID(itemID))
	}
	if item.CartID != cartID || !item.IsActive {
		logger.Warn("Cart item does not belong to cart", map[string]interface{}{
			"cart_id":      cartID,
			"cart_item_id": itemID,
			"owner_cart":   item.CartID,
		})
		return nil, &NotFoundError{Entity: "cart item", ID: formatItemID(itemID)}
	}
	return item, nil
}

func optionPairs(options []OptionInput) []matching.Pair {
	pairs := make([]matching.Pair, 0, len(options))
	for _, o := range options {
		pairs = append(pairs, matching.Pair{Attribute: o.Attribute, Value: o.Value})
	}
	return pairs
}

func formatItemID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseItemID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse item id %q: %w", s, err)
	}
	return uint(id), nil
}
