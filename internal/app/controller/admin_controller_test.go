package controller

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedAdminCarts(t *testing.T, router *gin.Engine) string {
	owner := decode[cartEnvelope](t, doJSON(t, router, http.MethodPost, "/api/v1/carts", gin.H{"user_id": "user-1"}))
	doJSON(t, router, http.MethodPost, "/api/v1/carts/"+owner.Cart.ID+"/items", gin.H{
		"prod_id":      "sku-A",
		"quantity":     2,
		"item_options": []gin.H{{"attribute": "color", "value": "red"}},
	})
	doJSON(t, router, http.MethodPost, "/api/v1/items", gin.H{"prod_id": "sku-B", "quantity": 1})
	return owner.Cart.ID
}

func TestAdminController_Listings(t *testing.T) {
	router, _, _ := setupCartControllerTest(t)
	seedAdminCarts(t, router)

	carts := decode[struct {
		Carts []snapshot.Cart `json:"carts"`
		Count int             `json:"count"`
	}](t, doJSON(t, router, http.MethodGet, "/api/v1/admin/carts", nil))
	assert.Equal(t, 2, carts.Count)
	assert.Len(t, carts.Carts, 2)

	items := decode[struct {
		Count int `json:"count"`
	}](t, doJSON(t, router, http.MethodGet, "/api/v1/admin/items", nil))
	assert.Equal(t, 2, items.Count)

	options := decode[struct {
		Options []snapshot.Option `json:"item_options"`
		Count   int               `json:"count"`
	}](t, doJSON(t, router, http.MethodGet, "/api/v1/admin/options", nil))
	require.Equal(t, 1, options.Count)
	assert.Equal(t, "red", options.Options[0].Value)
}

func TestAdminController_ExportCarts(t *testing.T) {
	router, _, _ := setupCartControllerTest(t)
	ownerCartID := seedAdminCarts(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/carts/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Carts")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var ids []string
	for _, row := range rows[1:] {
		ids = append(ids, row[0])
	}
	assert.Contains(t, ids, ownerCartID)
}

func TestAdminController_RebuildCache(t *testing.T) {
	router, _, memCache := setupCartControllerTest(t)
	seedAdminCarts(t, router)

	keys, err := memCache.Keys(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, memCache.Delete(context.Background(), keys...))
	require.Zero(t, memCache.Len())

	w := doJSON(t, router, http.MethodPost, "/api/v1/admin/carts/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[struct {
		Rebuilt int `json:"rebuilt"`
	}](t, w).Rebuilt)

	w = doJSON(t, router, http.MethodGet, "/api/v1/admin/options", nil)
	assert.Contains(t, w.Body.String(), `"count":1`)
}
