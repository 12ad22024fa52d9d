package repository

import (
	"context"
	"time"

	"github.com/ikkim/cart-sync/internal/app/model"
	"github.com/ikkim/cart-sync/pkg/logger"
	"gorm.io/gorm"
)

// CartRepository is the durable store of the cart aggregate.
// Lookups that miss return gorm.ErrRecordNotFound.
type CartRepository interface {
	// Transaction runs fn against a repository bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx CartRepository) error) error

	CreateCart(ctx context.Context, cart *model.Cart) error
	FindCartByID(ctx context.Context, id string) (*model.Cart, error)
	FindCartByUserID(ctx context.Context, userID string) (*model.Cart, error)
	FindCarts(ctx context.Context) ([]model.Cart, error)
	FindGuestCartsModifiedBefore(ctx context.Context, cutoff time.Time) ([]model.Cart, error)
	TouchCart(ctx context.Context, id string) error
	DeleteCart(ctx context.Context, id string) error

	CreateItem(ctx context.Context, item *model.CartItem) error
	FindItemByID(ctx context.Context, id uint) (*model.CartItem, error)
	FindItemsByCartID(ctx context.Context, cartID string, activeOnly bool) ([]model.CartItem, error)
	FindItems(ctx context.Context) ([]model.CartItem, error)
	IncrementItemQuantity(ctx context.Context, id uint, delta int) error
	UpdateItemQuantity(ctx context.Context, id uint, quantity int) error
	MoveItem(ctx context.Context, id uint, cartID string) error
	DeleteItem(ctx context.Context, id uint) error
	TouchItem(ctx context.Context, id uint) error

	FindOptionByID(ctx context.Context, id uint) (*model.ItemOption, error)
	FindOptions(ctx context.Context) ([]model.ItemOption, error)
	DeleteOption(ctx context.Context, id uint) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("item_options.id ASC")
}

func (r *cartRepository) Transaction(ctx context.Context, fn func(tx CartRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&cartRepository{db: tx})
	})
}

func (r *cartRepository) CreateCart(ctx context.Context, cart *model.Cart) error {
	logger.Debug("Creating cart in database", map[string]interface{}{
		"user_id": cart.UserID,
	})

	if err := r.db.WithContext(ctx).Omit("CartItems").Create(cart).Error; err != nil {
		logger.Error("Failed to create cart in database", err, map[string]interface{}{
			"user_id": cart.UserID,
		})
		return err
	}

	logger.Debug("Cart created in database", map[string]interface{}{
		"cart_id": cart.ID,
	})
	return nil
}

func (r *cartRepository) FindCartByID(ctx context.Context, id string) (*model.Cart, error) {
	var cart model.Cart
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindCartByUserID returns the owner's most recently modified cart.
func (r *cartRepository) FindCartByUserID(ctx context.Context, userID string) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("modified_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindCarts(ctx context.Context) ([]model.Cart, error) {
	var carts []model.Cart
	err := r.db.WithContext(ctx).
		Preload("CartItems", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("cart_items.id ASC")
		}).
		Preload("CartItems.ItemOptions", orderedOptions).
		Order("created_at ASC").
		Find(&carts).Error
	if err != nil {
		logger.Error("Failed to list carts from database", err)
		return nil, err
	}
	return carts, nil
}

func (r *cartRepository) FindGuestCartsModifiedBefore(ctx context.Context, cutoff time.Time) ([]model.Cart, error) {
	var carts []model.Cart
	err := r.db.WithContext(ctx).
		Where("(user_id IS NULL OR user_id = '') AND modified_at < ?", cutoff).
		Find(&carts).Error
	if err != nil {
		logger.Error("Failed to find expired guest carts", err, map[string]interface{}{
			"cutoff": cutoff,
		})
		return nil, err
	}
	return carts, nil
}

func (r *cartRepository) TouchCart(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", id).
		Update("modified_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCart removes the cart with its items and options.
func (r *cartRepository) DeleteCart(ctx context.Context, id string) error {
	logger.Debug("Deleting cart from database", map[string]interface{}{
		"cart_id": id,
	})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		itemIDs := tx.Model(&model.CartItem{}).Select("id").Where("cart_id = ?", id)
		if err := tx.Where("cart_item_id IN (?)", itemIDs).Delete(&model.ItemOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", id).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Cart{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to delete cart from database", err, map[string]interface{}{
			"cart_id": id,
		})
		return err
	}

	logger.Debug("Cart deleted from database", map[string]interface{}{
		"cart_id": id,
	})
	return nil
}

// CreateItem inserts the item together with its ItemOptions.
func (r *cartRepository) CreateItem(ctx context.Context, item *model.CartItem) error {
	logger.Debug("Creating cart item in database", map[string]interface{}{
		"cart_id":  item.CartID,
		"prod_id":  item.ProdID,
		"quantity": item.Quantity,
		"options":  len(item.ItemOptions),
	})

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		logger.Error("Failed to create cart item in database", err, map[string]interface{}{
			"cart_id": item.CartID,
			"prod_id": item.ProdID,
		})
		return err
	}

	logger.Debug("Cart item created in database", map[string]interface{}{
		"cart_item_id": item.ID,
		"cart_id":      item.CartID,
	})
	return nil
}

func (r *cartRepository) FindItemByID(ctx context.Context, id uint) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Preload("ItemOptions", orderedOptions).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindItemsByCartID(ctx context.Context, cartID string, activeOnly bool) ([]model.CartItem, error) {
	q := r.db.WithContext(ctx).
		Preload("ItemOptions", orderedOptions).
		Where("cart_id = ?", cartID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var items []model.CartItem
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		logger.Error("Failed to find cart items by cart ID", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) FindItems(ctx context.Context) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.WithContext(ctx).
		Preload("ItemOptions", orderedOptions).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// IncrementItemQuantity adds delta in a single UPDATE so concurrent increments never lose writes.
func (r *cartRepository) IncrementItemQuantity(ctx context.Context, id uint, delta int) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		logger.Error("Failed to increment cart item quantity", res.Error, map[string]interface{}{
			"cart_item_id": id,
			"delta":        delta,
		})
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, id uint, quantity int) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("quantity", quantity)
	if res.Error != nil {
		logger.Error("Failed to update cart item quantity", res.Error, map[string]interface{}{
			"cart_item_id": id,
		})
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *cartRepository) TouchItem(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("modified_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MoveItem re-parents an item (and implicitly its options) onto another cart.
func (r *cartRepository) MoveItem(ctx context.Context, id uint, cartID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("cart_id", cartID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteItem removes the item and its options.
func (r *cartRepository) DeleteItem(ctx context.Context, id uint) error {
	logger.Debug("Deleting cart item from database", map[string]interface{}{
		"cart_item_id": id,
	})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_item_id = ?", id).Delete(&model.ItemOption{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.CartItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to delete cart item from database", err, map[string]interface{}{
			"cart_item_id": id,
		})
		return err
	}
	return nil
}

func (r *cartRepository) FindOptionByID(ctx context.Context, id uint) (*model.ItemOption, error) {
	var opt model.ItemOption
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&opt).Error; err != nil {
		return nil, err
	}
	return &opt, nil
}

// FindOptions lists the options of active items.
func (r *cartRepository) FindOptions(ctx context.Context) ([]model.ItemOption, error) {
	var opts []model.ItemOption
	err := r.db.WithContext(ctx).
		Joins("JOIN cart_items ON cart_items.id = item_options.cart_item_id").
		Where("cart_items.is_active = ?", true).
		Order("item_options.id ASC").
		Find(&opts).Error
	if err != nil {
		return nil, err
	}
	return opts, nil
}

func (r *cartRepository) DeleteOption(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ItemOption{})
	if res.Error != nil {
		logger.Error("Failed to delete item option from database", res.Error, map[string]interface{}{
			"item_option_id": id,
		})
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
