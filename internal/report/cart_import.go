package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/xuri/excelize/v2"
)

// ReadCartWorkbook parses a workbook in the layout written by WriteCartWorkbook.
// Items are attached to carts and options to items by the id columns; the Items
// "options" column is descriptive only and is ignored.
func ReadCartWorkbook(r io.Reader) ([]snapshot.Cart, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	cartRows, err := dataRows(f, CartsSheet)
	if err != nil {
		return nil, err
	}
	itemRows, err := dataRows(f, ItemsSheet)
	if err != nil {
		return nil, err
	}
	optionRows, err := dataRows(f, OptionsSheet)
	if err != nil {
		return nil, err
	}

	options := make(map[string][]snapshot.Option)
	for _, row := range optionRows {
		opt := snapshot.Option{
			ID:         cell(row, 0),
			CartItemID: cell(row, 1),
			Attribute:  cell(row, 2),
			Value:      cell(row, 3),
			CreatedAt:  cell(row, 4),
			ModifiedAt: cell(row, 5),
		}
		if opt.CartItemID == "" || opt.Attribute == "" || opt.Value == "" {
			return nil, fmt.Errorf("%s: option %q is incomplete", OptionsSheet, opt.ID)
		}
		options[opt.CartItemID] = append(options[opt.CartItemID], opt)
	}

	items := make(map[string][]snapshot.Item)
	for i, row := range itemRows {
		quantity, err := strconv.Atoi(cell(row, 3))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid quantity %q", ItemsSheet, i+2, cell(row, 3))
		}
		item := snapshot.Item{
			ID:          cell(row, 0),
			CartID:      cell(row, 1),
			ProdID:      cell(row, 2),
			Quantity:    quantity,
			IsActive:    !strings.EqualFold(cell(row, 4), "false"),
			CreatedAt:   cell(row, 6),
			ModifiedAt:  cell(row, 7),
			ItemOptions: options[cell(row, 0)],
		}
		if item.ItemOptions == nil {
			item.ItemOptions = []snapshot.Option{}
		}
		if item.CartID == "" || item.ProdID == "" {
			return nil, fmt.Errorf("%s row %d: cart_id and prod_id are required", ItemsSheet, i+2)
		}
		items[item.CartID] = append(items[item.CartID], item)
	}

	carts := make([]snapshot.Cart, 0, len(cartRows))
	for i, row := range cartRows {
		cart := snapshot.Cart{
			ID:         cell(row, 0),
			CartItems:  items[cell(row, 0)],
			CreatedAt:  cell(row, 4),
			ModifiedAt: cell(row, 5),
		}
		if cart.ID == "" {
			return nil, fmt.Errorf("%s row %d: cart_id is required", CartsSheet, i+2)
		}
		if owner := cell(row, 1); owner != "" {
			cart.UserID = &owner
		}
		if cart.CartItems == nil {
			cart.CartItems = []snapshot.Item{}
		}
		carts = append(carts, cart)
	}
	return carts, nil
}

// dataRows returns the rows of sheet without its header row.
func dataRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheet)
	}
	return rows[1:], nil
}

// GetRows drops trailing empty cells, so short rows are padded here.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
