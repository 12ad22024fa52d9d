package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/controller"
	"github.com/ikkim/cart-sync/internal/middleware"
)

type Router struct {
	cartController  *controller.CartController
	adminController *controller.AdminController
	config          *config.Config
}

func NewRouter(
	cartController *controller.CartController,
	adminController *controller.AdminController,
	cfg *config.Config,
) *Router {
	return &Router{
		cartController:  cartController,
		adminController: adminController,
		config:          cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Cart sync API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		carts := v1.Group("/carts")
		{
			carts.POST("", r.cartController.CreateCart)
			carts.GET("/:id", r.cartController.GetCart)
			carts.DELETE("/:id", r.cartController.DeleteCart)
			carts.POST("/:id/items", r.cartController.AddItem)
			carts.GET("/:id/items/:item_id", r.cartController.GetItem)
			carts.PATCH("/:id/items/:item_id", r.cartController.UpdateItem)
			carts.DELETE("/:id/items/:item_id", r.cartController.DeleteItem)
		}

		v1.POST("/items", r.cartController.AddGuestItem)
		v1.DELETE("/options/:id", r.cartController.DeleteItemOption)

		users := v1.Group("/users/:user_id")
		{
			users.GET("/cart", r.cartController.GetUserCart)
			users.POST("/cart/merge", r.cartController.MergeCart)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/carts", r.adminController.ListCarts)
			admin.GET("/carts/export", r.adminController.ExportCarts)
			admin.POST("/carts/rebuild", r.adminController.RebuildCache)
			admin.GET("/items", r.adminController.ListItems)
			admin.GET("/options", r.adminController.ListOptions)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-Request-ID, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
