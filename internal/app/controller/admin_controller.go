package controller

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/cart-sync/internal/app/service"
	apperrors "github.com/ikkim/cart-sync/internal/errors"
	"github.com/ikkim/cart-sync/internal/middleware"
	"github.com/ikkim/cart-sync/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminController exposes cache-backed listings and maintenance operations.
type AdminController struct {
	cartService service.CartService
}

func NewAdminController(cartService service.CartService) *AdminController {
	return &AdminController{cartService: cartService}
}

// ListCarts returns every cart snapshot
// GET /api/v1/admin/carts
func (ctrl *AdminController) ListCarts(c *gin.Context) {
	carts, err := ctrl.cartService.ListCarts(c.Request.Context())
	if err != nil {
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"carts": carts,
		"count": len(carts),
	})
}

// ListItems returns every cart item snapshot
// GET /api/v1/admin/items
func (ctrl *AdminController) ListItems(c *gin.Context) {
	items, err := ctrl.cartService.ListItems(c.Request.Context())
	if err != nil {
		apperrors.ParseAndRespond(c, err, "cart_item")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cart_items": items,
		"count":      len(items),
	})
}

// ListOptions returns every item option snapshot
// GET /api/v1/admin/options
func (ctrl *AdminController) ListOptions(c *gin.Context) {
	options, err := ctrl.cartService.ListOptions(c.Request.Context())
	if err != nil {
		apperrors.ParseAndRespond(c, err, "item_option")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_options": options,
		"count":        len(options),
	})
}

// ExportCarts streams all carts as an xlsx workbook
// GET /api/v1/admin/carts/export
func (ctrl *AdminController) ExportCarts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	carts, err := ctrl.cartService.ListCarts(c.Request.Context())
	if err != nil {
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCartWorkbook(&buf, carts); err != nil {
		log.Error("Failed to build cart workbook", err)
		apperrors.RespondWithError(c, http.StatusInternalServerError, apperrors.InternalExportError, "Failed to export carts")
		return
	}

	filename := fmt.Sprintf("carts-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	log.Info("Cart workbook exported", map[string]interface{}{
		"carts": len(carts),
		"bytes": buf.Len(),
	})

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// RebuildCache republishes every cart aggregate from the store
// POST /api/v1/admin/carts/rebuild
func (ctrl *AdminController) RebuildCache(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	rebuilt, err := ctrl.cartService.RebuildAll(c.Request.Context())
	if err != nil {
		log.Error("Failed to rebuild cart cache", err)
		apperrors.ParseAndRespond(c, err, "cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rebuilt": rebuilt,
	})
}
