package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/controller"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/ikkim/cart-sync/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := repository.NewCartRepository(testDB)
	c := cache.NewMemoryCache(0)
	locks := service.NewCartLocker()
	merges := service.NewMergeService(repo, c, locks)
	carts := service.NewCartService(repo, c, locks, merges)

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	return NewRouter(controller.NewCartController(carts, merges), controller.NewAdminController(carts), cfg).Setup()
}

func TestRouter_Health(t *testing.T) {
	engine := setupRouterTest(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_CORSPreflight(t *testing.T) {
	engine := setupRouterTest(t)

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"Allowed origin", "http://localhost:3000", "http://localhost:3000"},
		{"Unknown origin", "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/carts", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRouter_CartRoutes(t *testing.T) {
	engine := setupRouterTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"prod_id":"sku-1","quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody/cart", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
