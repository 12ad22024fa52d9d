package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/controller"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/ikkim/cart-sync/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type TestServer struct {
	Router *gin.Engine
	DB     *gorm.DB
	Cache  *cache.MemoryCache
}

func setupIntegrationTest(t *testing.T) *TestServer {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	snapshots := cache.NewMemoryCache(0)
	cartRepo := repository.NewCartRepository(testDB)
	locks := service.NewCartLocker()
	mergeService := service.NewMergeService(cartRepo, snapshots, locks)
	cartService := service.NewCartService(cartRepo, snapshots, locks, mergeService)

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	r := router.NewRouter(
		controller.NewCartController(cartService, mergeService),
		controller.NewAdminController(cartService),
		cfg,
	)

	return &TestServer{
		Router: r.Setup(),
		DB:     testDB,
		Cache:  snapshots,
	}
}

func (ts *TestServer) makeRequest(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) cachedCart(t *testing.T, key string) snapshot.Cart {
	raw, err := ts.Cache.Get(context.Background(), key)
	require.NoError(t, err)
	cart, err := snapshot.DecodeCart(raw)
	require.NoError(t, err)
	return *cart
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// Guest shops anonymously, signs in, and the guest cart is folded into the account cart.
func TestIntegration_GuestCheckoutFlow(t *testing.T) {
	ts := setupIntegrationTest(t)

	// account cart already holds a red shirt
	var owner struct {
		Cart snapshot.Cart `json:"cart"`
	}
	w := ts.makeRequest(t, http.MethodPost, "/api/v1/carts", gin.H{"user_id": "user-42"})
	require.Equal(t, http.StatusCreated, w.Code)
	parseResponse(t, w, &owner)

	w = ts.makeRequest(t, http.MethodPost, "/api/v1/carts/"+owner.Cart.ID+"/items", gin.H{
		"prod_id":      "shirt",
		"quantity":     1,
		"item_options": []gin.H{{"attribute": "color", "value": "red"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// anonymous session
	var guestItem struct {
		CartItem snapshot.Item `json:"cart_item"`
	}
	w = ts.makeRequest(t, http.MethodPost, "/api/v1/items", gin.H{
		"prod_id":      "shirt",
		"quantity":     2,
		"item_options": []gin.H{{"attribute": "color", "value": "red"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	parseResponse(t, w, &guestItem)
	guestCartID := guestItem.CartItem.CartID

	w = ts.makeRequest(t, http.MethodPost, "/api/v1/items", gin.H{
		"cart_id":      guestCartID,
		"prod_id":      "shirt",
		"quantity":     1,
		"item_options": []gin.H{{"attribute": "color", "value": "blue"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.makeRequest(t, http.MethodPost, "/api/v1/items", gin.H{
		"cart_id":  guestCartID,
		"prod_id":  "socks",
		"quantity": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	guestSnap := ts.cachedCart(t, cache.CartKey(guestCartID))
	assert.Nil(t, guestSnap.UserID)
	assert.Len(t, guestSnap.CartItems, 3)

	// login
	var merged struct {
		Cart snapshot.Cart `json:"cart"`
	}
	w = ts.makeRequest(t, http.MethodPost, "/api/v1/users/user-42/cart/merge", gin.H{"guest_cart_id": guestCartID})
	require.Equal(t, http.StatusOK, w.Code)
	parseResponse(t, w, &merged)

	assert.Equal(t, owner.Cart.ID, merged.Cart.ID)
	require.Len(t, merged.Cart.CartItems, 3)

	quantities := map[string]int{}
	for _, item := range merged.Cart.CartItems {
		key := item.ProdID
		for _, o := range item.ItemOptions {
			key += "/" + o.Value
		}
		quantities[key] = item.Quantity
	}
	assert.Equal(t, map[string]int{"shirt/red": 3, "shirt/blue": 1, "socks": 4}, quantities)

	assert.Equal(t, merged.Cart, ts.cachedCart(t, cache.CartKey(owner.Cart.ID)))
	assert.Equal(t, merged.Cart, ts.cachedCart(t, "cart:user:user-42"))
	_, err := ts.Cache.Get(context.Background(), cache.CartKey(guestCartID))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	w = ts.makeRequest(t, http.MethodGet, "/api/v1/carts/"+guestCartID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the account view matches what a rebuild from the store produces
	keys, err := ts.Cache.Keys(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, ts.Cache.Delete(context.Background(), keys...))

	var fromStore struct {
		Cart snapshot.Cart `json:"cart"`
	}
	w = ts.makeRequest(t, http.MethodGet, "/api/v1/users/user-42/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parseResponse(t, w, &fromStore)
	assert.Equal(t, merged.Cart, fromStore.Cart)
}

func TestIntegration_EditAndCleanup(t *testing.T) {
	ts := setupIntegrationTest(t)

	var item struct {
		CartItem snapshot.Item `json:"cart_item"`
	}
	w := ts.makeRequest(t, http.MethodPost, "/api/v1/items", gin.H{
		"prod_id":  "mug",
		"quantity": 1,
		"item_options": []gin.H{
			{"attribute": "color", "value": "white"},
			{"attribute": "print", "value": "logo"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	parseResponse(t, w, &item)
	cartID := item.CartItem.CartID
	itemPath := "/api/v1/carts/" + cartID + "/items/" + item.CartItem.ID

	w = ts.makeRequest(t, http.MethodPatch, itemPath, gin.H{"quantity": 6})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.makeRequest(t, http.MethodDelete, "/api/v1/options/"+item.CartItem.ItemOptions[1].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := ts.cachedCart(t, cache.CartKey(cartID))
	require.Len(t, snap.CartItems, 1)
	assert.Equal(t, 6, snap.CartItems[0].Quantity)
	require.Len(t, snap.CartItems[0].ItemOptions, 1)
	assert.Equal(t, "color", snap.CartItems[0].ItemOptions[0].Attribute)

	w = ts.makeRequest(t, http.MethodDelete, "/api/v1/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var counts struct {
		Count int `json:"count"`
	}
	w = ts.makeRequest(t, http.MethodGet, "/api/v1/admin/carts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parseResponse(t, w, &counts)
	assert.Zero(t, counts.Count)
}
