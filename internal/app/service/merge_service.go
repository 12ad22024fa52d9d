package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ikkim/cart-sync/internal/app/matching"
	"github.com/ikkim/cart-sync/internal/app/model"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/pkg/logger"
	"gorm.io/gorm"
)

// MergeService folds line items together: at add time within one cart, and when a guest
// cart is handed over to its owner after login.
type MergeService interface {
	AddQuantity(ctx context.Context, cartID string, itemID uint, delta int) (*model.CartItem, error)
	MergeCarts(ctx context.Context, guestCartID, userID string) (*snapshot.Cart, error)
}

type mergeService struct {
	repo  repository.CartRepository
	pub   *publisher
	locks *CartLocker
}

func NewMergeService(repo repository.CartRepository, c cache.Cache, locks *CartLocker) MergeService {
	return &mergeService{
		repo:  repo,
		pub:   newPublisher(repo, c),
		locks: locks,
	}
}

// AddQuantity increments the item in place and republishes the item and its cart.
func (s *mergeService) AddQuantity(ctx context.Context, cartID string, itemID uint, delta int) (*model.CartItem, error) {
	if err := positiveQuantity("quantity", delta); err != nil {
		return nil, err
	}

	ctx, unlock := s.locks.Lock(ctx, cartLockKey(cartID))
	defer unlock()

	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "cart item", formatItemID(itemID))
	}
	if item.CartID != cartID || !item.IsActive {
		return nil, &NotFoundError{Entity: "cart item", ID: formatItemID(itemID)}
	}

	err = s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		if err := tx.IncrementItemQuantity(ctx, itemID, delta); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cartID)
	})
	if err != nil {
		logger.Error("Failed to increment cart item quantity", err, map[string]interface{}{
			"cart_item_id": itemID,
			"delta":        delta,
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

	logger.Info("Cart item quantity incremented", map[string]interface{}{
		"cart_item_id": itemID,
		"delta":        delta,
		"quantity":     updated.Quantity,
	})
	return updated, nil
}

type mergeResult struct {
	guestItems []model.CartItem
	moved      []uint
	merged     []uint
}

// MergeCarts hands a guest cart over to userID. Store changes happen in one transaction
// that ends by deleting the guest cart, so repeating a merge finds nothing to do.
func (s *mergeService) MergeCarts(ctx context.Context, guestCartID, userID string) (*snapshot.Cart, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if guestCartID == "" {
		return nil, &ValidationError{Field: "guest_cart_id", Reason: "is required"}
	}

	logger.Info("Merging guest cart", map[string]interface{}{
		"guest_cart_id": guestCartID,
		"user_id":       userID,
	})

	ctx, unlockUser := s.locks.Lock(ctx, userLockKey(userID))
	defer unlockUser()

	owner, err := s.ownerCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner.ID == guestCartID {
		return s.currentSnapshot(ctx, owner.ID)
	}

	ctx, unlockCarts := s.locks.Lock(ctx, cartLockKey(guestCartID), cartLockKey(owner.ID))
	defer unlockCarts()

	guest, err := s.repo.FindCartByID(ctx, guestCartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Info("Guest cart already merged or gone, nothing to do", map[string]interface{}{
			"guest_cart_id": guestCartID,
			"user_id":       userID,
		})
		return s.currentSnapshot(ctx, owner.ID)
	}
	if err != nil {
		return nil, storeError(err, "cart", guestCartID)
	}
	if !guest.IsGuest() && *guest.UserID != userID {
		logger.Warn("Refusing to merge a cart owned by another user", map[string]interface{}{
			"guest_cart_id": guestCartID,
			"user_id":       userID,
		})
		return nil, &ValidationError{Field: "guest_cart_id", Reason: "cart belongs to another user"}
	}

	var result mergeResult
	err = s.repo.Transaction(ctx, func(tx repository.CartRepository) error {
		r, err := foldInto(ctx, tx, guest, owner)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error("Failed to merge guest cart", err, map[string]interface{}{
			"guest_cart_id": guestCartID,
			"owner_cart_id": owner.ID,
		})
		return nil, fmt.Errorf("merge cart %s into %s: %w", guestCartID, owner.ID, err)
	}

	s.pub.evictCart(ctx, guest)
	movedSet := make(map[uint]struct{}, len(result.moved))
	for _, id := range result.moved {
		movedSet[id] = struct{}{}
	}
	for i := range result.guestItems {
		gi := &result.guestItems[i]
		if _, ok := movedSet[gi.ID]; ok {
			s.pub.evict(ctx, cache.CartItemScopedKey(guest.ID, gi.ID))
			continue
		}
		s.pub.evictItem(ctx, gi)
	}

	for _, id := range result.moved {
		if _, err := s.pub.rebuildItem(ctx, id, true); err != nil {
			return nil, err
		}
	}
	for _, id := range result.merged {
		if _, err := s.pub.rebuildItem(ctx, id, false); err != nil {
			return nil, err
		}
	}
	snap, err := s.pub.rebuildCart(ctx, owner.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("Guest cart merged", map[string]interface{}{
		"guest_cart_id": guestCartID,
		"owner_cart_id": owner.ID,
		"moved":         len(result.moved),
		"merged":        len(result.merged),
	})
	return snap, nil
}

// foldInto applies the merge inside tx: exact matches sum into the owner's item, everything
// else is re-parented. The guest cart and whatever is left under it are deleted last.
func foldInto(ctx context.Context, tx repository.CartRepository, guest, owner *model.Cart) (mergeResult, error) {
	var result mergeResult

	guestItems, err := tx.FindItemsByCartID(ctx, guest.ID, false)
	if err != nil {
		return result, err
	}
	ownerItems, err := tx.FindItemsByCartID(ctx, owner.ID, true)
	if err != nil {
		return result, err
	}
	result.guestItems = guestItems

	target := snapshot.BuildCart(owner, ownerItems)
	mergedSet := make(map[uint]struct{})
	for i := range guestItems {
		gi := &guestItems[i]
		if !gi.IsActive {
			continue
		}
		candidate := snapshot.BuildItem(gi)

		match := matching.ExactMatch(target.CartItems, matching.CandidateFromItem(&candidate))
		if match == nil {
			if err := tx.MoveItem(ctx, gi.ID, owner.ID); err != nil {
				return result, err
			}
			candidate.CartID = owner.ID
			target.CartItems = append(target.CartItems, candidate)
			result.moved = append(result.moved, gi.ID)
			continue
		}

		ownerItemID, err := parseItemID(match.ID)
		if err != nil {
			return result, err
		}
		if err := tx.IncrementItemQuantity(ctx, ownerItemID, gi.Quantity); err != nil {
			return result, err
		}
		match.Quantity += gi.Quantity
		if _, seen := mergedSet[ownerItemID]; !seen {
			mergedSet[ownerItemID] = struct{}{}
			result.merged = append(result.merged, ownerItemID)
		}
	}

	if err := tx.TouchCart(ctx, owner.ID); err != nil {
		return result, err
	}
	if err := tx.DeleteCart(ctx, guest.ID); err != nil {
		return result, err
	}
	return result, nil
}

// ownerCart returns the user's cart, creating and publishing an empty one if needed.
// Callers hold the user lock.
func (s *mergeService) ownerCart(ctx context.Context, userID string) (*model.Cart, error) {
	owner, err := s.repo.FindCartByUserID(ctx, userID)
	if err == nil {
		return owner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find cart of user %s: %w", userID, err)
	}

	owner = &model.Cart{UserID: &userID}
	if err := s.repo.CreateCart(ctx, owner); err != nil {
		return nil, fmt.Errorf("create cart for user %s: %w", userID, err)
	}
	s.pub.publishCart(ctx, owner, nil)

	logger.Info("Created cart for merge target", map[string]interface{}{
		"cart_id": owner.ID,
		"user_id": userID,
	})
	return owner, nil
}

func (s *mergeService) currentSnapshot(ctx context.Context, cartID string) (*snapshot.Cart, error) {
	cart, items, err := s.pub.loadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	snap := snapshot.BuildCart(cart, items)
	return &snap, nil
}
