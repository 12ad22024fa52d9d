package report

import (
	"bytes"
	"testing"

	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCartWorkbook_ReadsExport(t *testing.T) {
	owner := "user-1"
	exported := []snapshot.Cart{
		{
			ID:     "cart-1",
			UserID: &owner,
			CartItems: []snapshot.Item{
				{
					ID: "1", CartID: "cart-1", ProdID: "sku-1", Quantity: 2, IsActive: true,
					ItemOptions: []snapshot.Option{
						{ID: "10", CartItemID: "1", Attribute: "color", Value: "red"},
						{ID: "11", CartItemID: "1", Attribute: "size", Value: "M"},
					},
				},
				{ID: "2", CartID: "cart-1", ProdID: "sku-2", Quantity: 3, IsActive: true, ItemOptions: []snapshot.Option{}},
			},
		},
		{ID: "cart-2", CartItems: []snapshot.Item{}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCartWorkbook(&buf, exported))

	carts, err := ReadCartWorkbook(&buf)
	require.NoError(t, err)
	require.Len(t, carts, 2)

	first := carts[0]
	assert.Equal(t, "cart-1", first.ID)
	require.NotNil(t, first.UserID)
	assert.Equal(t, "user-1", *first.UserID)
	require.Len(t, first.CartItems, 2)
	assert.True(t, first.CartItems[0].IsActive)
	assert.Equal(t, 2, first.CartItems[0].Quantity)
	assert.Equal(t, exported[0].CartItems[0].ItemOptions, first.CartItems[0].ItemOptions)
	assert.Empty(t, first.CartItems[1].ItemOptions)

	assert.Nil(t, carts[1].UserID)
	assert.NotNil(t, carts[1].CartItems)
	assert.Empty(t, carts[1].CartItems)
}

func TestReadCartWorkbook_Errors(t *testing.T) {
	t.Run("Not a workbook", func(t *testing.T) {
		_, err := ReadCartWorkbook(bytes.NewReader([]byte("plain text")))
		assert.Error(t, err)
	})

	t.Run("Missing sheets", func(t *testing.T) {
		f := excelize.NewFile()
		defer f.Close()
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		_, err := ReadCartWorkbook(&buf)
		assert.Error(t, err)
	})

	t.Run("Invalid quantity", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCartWorkbook(&buf, []snapshot.Cart{{
			ID: "cart-1",
			CartItems: []snapshot.Item{
				{ID: "1", CartID: "cart-1", ProdID: "sku-1", Quantity: 1, IsActive: true},
			},
		}}))

		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(ItemsSheet, "D2", "many"))
		var edited bytes.Buffer
		require.NoError(t, f.Write(&edited))
		f.Close()

		_, err = ReadCartWorkbook(&edited)
		assert.ErrorContains(t, err, "invalid quantity")
	})
}
