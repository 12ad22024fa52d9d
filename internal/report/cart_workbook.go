// Package report renders cart snapshots into an xlsx workbook for back-office use.
package report

import (
	"fmt"
	"io"

	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/xuri/excelize/v2"
)

const (
	CartsSheet   = "Carts"
	ItemsSheet   = "Items"
	OptionsSheet = "Options"
)

var (
	cartHeaders   = []interface{}{"cart_id", "user_id", "items", "total_quantity", "created_at", "modified_at"}
	itemHeaders   = []interface{}{"cart_item_id", "cart_id", "prod_id", "quantity", "is_active", "options", "created_at", "modified_at"}
	optionHeaders = []interface{}{"item_option_id", "cart_item_id", "attribute", "value", "created_at", "modified_at"}
)

// WriteCartWorkbook writes one sheet per aggregate level: carts, items and options.
func WriteCartWorkbook(w io.Writer, carts []snapshot.Cart) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), CartsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{ItemsSheet, OptionsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	rows := map[string]int{CartsSheet: 1, ItemsSheet: 1, OptionsSheet: 1}
	appendRow := func(sheet string, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, rows[sheet])
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, rows[sheet], err)
		}
		rows[sheet]++
		return nil
	}

	for sheet, headers := range map[string][]interface{}{
		CartsSheet:   cartHeaders,
		ItemsSheet:   itemHeaders,
		OptionsSheet: optionHeaders,
	} {
		if err := appendRow(sheet, headers); err != nil {
			return err
		}
	}

	for _, cart := range carts {
		owner := ""
		if cart.UserID != nil {
			owner = *cart.UserID
		}
		total := 0
		for _, item := range cart.CartItems {
			total += item.Quantity
		}
		if err := appendRow(CartsSheet, []interface{}{
			cart.ID, owner, len(cart.CartItems), total, cart.CreatedAt, cart.ModifiedAt,
		}); err != nil {
			return err
		}

		for _, item := range cart.CartItems {
			if err := appendRow(ItemsSheet, []interface{}{
				item.ID, item.CartID, item.ProdID, item.Quantity, item.IsActive,
				describeOptions(item.ItemOptions), item.CreatedAt, item.ModifiedAt,
			}); err != nil {
				return err
			}
			for _, opt := range item.ItemOptions {
				if err := appendRow(OptionsSheet, []interface{}{
					opt.ID, opt.CartItemID, opt.Attribute, opt.Value, opt.CreatedAt, opt.ModifiedAt,
				}); err != nil {
					return err
				}
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func describeOptions(opts []snapshot.Option) string {
	out := ""
	for i, o := range opts {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("(%s, %s)", o.Attribute, o.Value)
	}
	return out
}
