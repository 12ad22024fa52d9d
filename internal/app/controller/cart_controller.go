package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	apperrors "github.com/ikkim/cart-sync/internal/errors"
	"github.com/ikkim/cart-sync/internal/middleware"
)

type CartController struct {
	cartService  service.CartService
	mergeService service.MergeService
}

func NewCartController(cartService service.CartService, mergeService service.MergeService) *CartController {
	return &CartController{
		cartService:  cartService,
		mergeService: mergeService,
	}
}

type CreateCartRequest struct {
	UserID *string `json:"user_id"`
}

type AddItemRequest struct {
	CartID      string                `json:"cart_id"`
	ProdID      string                `json:"prod_id" binding:"required"`
	Quantity    int                   `json:"quantity" binding:"required,gt=0"`
	ItemOptions []service.OptionInput `json:"item_options" binding:"dive"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type MergeCartRequest struct {
	GuestCartID string `json:"guest_cart_id" binding:"required"`
}

// CreateCart creates a guest cart, or an owned cart when user_id is given
// POST /api/v1/carts
func (ctrl *CartController) CreateCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreateCartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn("Invalid create cart request", map[string]interface{}{
				"error": err.Error(),
			})
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
			return
		}
	}
	if req.UserID != nil && *req.UserID == "" {
		req.UserID = nil
	}

	cart, err := ctrl.cartService.CreateCart(c.Request.Context(), req.UserID)
	if err != nil {
		log.Error("Failed to create cart", err)
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	log.Info("Cart created", map[string]interface{}{
		"cart_id": cart.ID,
	})

	c.JSON(http.StatusCreated, gin.H{
		"cart": snapshot.BuildCart(cart, nil),
	})
}

// GetCart returns the cart snapshot, optionally falling back to the user's cart
// GET /api/v1/carts/:id?user_id=
func (ctrl *CartController) GetCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseCartID(c)
	if !ok {
		return
	}

	cart, err := ctrl.cartService.GetCart(c.Request.Context(), service.CartLookup{
		CartID: cartID,
		UserID: c.Query("user_id"),
	})
	if err != nil {
		log.Warn("Failed to fetch cart", map[string]interface{}{
			"cart_id": cartID,
			"error":   err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": cart,
	})
}

// GetUserCart returns the cart owned by a user
// GET /api/v1/users/:user_id/cart
func (ctrl *CartController) GetUserCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID := c.Param("user_id")

	cart, err := ctrl.cartService.GetCart(c.Request.Context(), service.CartLookup{UserID: userID})
	if err != nil {
		log.Warn("Failed to fetch user cart", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart": cart,
	})
}

// DeleteCart removes a cart with its items and options
// DELETE /api/v1/carts/:id
func (ctrl *CartController) DeleteCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseCartID(c)
	if !ok {
		return
	}

	if err := ctrl.cartService.DeleteCart(c.Request.Context(), cartID); err != nil {
		log.Error("Failed to delete cart", err, map[string]interface{}{
			"cart_id": cartID,
		})
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart deleted",
	})
}

// AddItem adds an item to the given cart, accumulating into a matching line
// POST /api/v1/carts/:id/items
func (ctrl *CartController) AddItem(c *gin.Context) {
	cartID, ok := parseCartID(c)
	if !ok {
		return
	}
	ctrl.addItem(c, cartID)
}

// AddGuestItem adds an item without an existing cart; a guest cart is created when cart_id is empty
// POST /api/v1/items
func (ctrl *CartController) AddGuestItem(c *gin.Context) {
	ctrl.addItem(c, "")
}

func (ctrl *CartController) addItem(c *gin.Context, cartID string) {
	log := middleware.GetLoggerFromContext(c)

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add item request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}
	if cartID == "" && req.CartID != "" {
		if _, err := uuid.Parse(req.CartID); err != nil {
			apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid cart ID")
			return
		}
		cartID = req.CartID
	}

	item, err := ctrl.cartService.AddItem(c.Request.Context(), cartID, req.ProdID, req.Quantity, req.ItemOptions)
	if err != nil {
		log.Warn("Failed to add item", map[string]interface{}{
			"cart_id": cartID,
			"prod_id": req.ProdID,
			"error":   err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"cart_id":      item.CartID,
		"cart_item_id": item.ID,
		"quantity":     item.Quantity,
	})

	c.JSON(http.StatusCreated, gin.H{
		"cart_item": snapshot.BuildItem(item),
	})
}

// GetItem returns one item of a cart
// GET /api/v1/carts/:id/items/:item_id
func (ctrl *CartController) GetItem(c *gin.Context) {
	cartID, ok := parseCartID(c)
	if !ok {
		return
	}
	itemID, ok := parseUintParam(c, "item_id", "Invalid cart item ID")
	if !ok {
		return
	}

	item, err := ctrl.cartService.GetItem(c.Request.Context(), cartID, itemID)
	if err != nil {
		apperrors.ParseAndRespond(c, err, "cart_item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart_item": item,
	})
}

// UpdateItem sets the quantity of an item
// PATCH /api/v1/carts/:id/items/:item_id
func (ctrl *CartController) UpdateItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseCartID(c)
	if !ok {
		return
	}
	itemID, ok := parseUintParam(c, "item_id", "Invalid cart item ID")
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidQuantity, "Quantity must be a positive integer")
		return
	}

	item, err := ctrl.cartService.UpdateItemQuantity(c.Request.Context(), cartID, itemID, req.Quantity)
	if err != nil {
		log.Warn("Failed to update cart item", map[string]interface{}{
			"cart_id":      cartID,
			"cart_item_id": itemID,
			"error":        err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "cart_item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart_item": snapshot.BuildItem(item),
	})
}

// DeleteItem removes an item and its options from a cart
// DELETE /api/v1/carts/:id/items/:item_id
func (ctrl *CartController) DeleteItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseCartID(c)
	if !ok {
		return
	}
	itemID, ok := parseUintParam(c, "item_id", "Invalid cart item ID")
	if !ok {
		return
	}

	if err := ctrl.cartService.DeleteItem(c.Request.Context(), cartID, itemID); err != nil {
		log.Warn("Failed to delete cart item", map[string]interface{}{
			"cart_id":      cartID,
			"cart_item_id": itemID,
			"error":        err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "cart_item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item deleted",
	})
}

// DeleteItemOption removes a single option from its item
// DELETE /api/v1/options/:id
func (ctrl *CartController) DeleteItemOption(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	optionID, ok := parseUintParam(c, "id", "Invalid item option ID")
	if !ok {
		return
	}

	if err := ctrl.cartService.DeleteItemOption(c.Request.Context(), optionID); err != nil {
		log.Warn("Failed to delete item option", map[string]interface{}{
			"item_option_id": optionID,
			"error":          err.Error(),
		})
		apperrors.ParseAndRespond(c, err, "item_option")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item option deleted",
	})
}

// MergeCart folds a guest cart into the user's cart after login
// POST /api/v1/users/:user_id/cart/merge
func (ctrl *CartController) MergeCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID := c.Param("user_id")

	var req MergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationRequired, "guest_cart_id is required")
		return
	}
	if _, err := uuid.Parse(req.GuestCartID); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid cart ID")
		return
	}

	cart, err := ctrl.mergeService.MergeCarts(c.Request.Context(), req.GuestCartID, userID)
	if err != nil {
		log.Error("Failed to merge guest cart", err, map[string]interface{}{
			"guest_cart_id": req.GuestCartID,
			"user_id":       userID,
		})
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	log.Info("Guest cart merged", map[string]interface{}{
		"guest_cart_id": req.GuestCartID,
		"cart_id":       cart.ID,
		"items":         len(cart.CartItems),
	})

	c.JSON(http.StatusOK, gin.H{
		"cart": cart,
	})
}

func parseCartID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid cart ID")
		return "", false
	}
	return id, true
}

func parseUintParam(c *gin.Context, name, message string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, message)
		return 0, false
	}
	return uint(id), true
}
