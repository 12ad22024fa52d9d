package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/ikkim/cart-sync/internal/report"
	"github.com/ikkim/cart-sync/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <xlsx_file_path>")
	}

	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Initialize(logger.Config{Level: "warn", Format: "console", EnableColor: true})

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	file, err := os.Open(filePath)
	if err != nil {
		log.Fatal("Failed to open XLSX:", err)
	}
	carts, err := report.ReadCartWorkbook(file)
	file.Close()
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}

	items := 0
	for _, c := range carts {
		items += len(c.CartItems)
	}
	fmt.Printf("Carts to import: %d (items: %d)\n", len(carts), items)

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	snapshots, closeCache, err := cache.Open(cfg)
	if err != nil {
		log.Fatal("Failed to open cache:", err)
	}
	defer closeCache()

	repo := repository.NewCartRepository(db.GetDB())
	locks := service.NewCartLocker()
	mergeService := service.NewMergeService(repo, snapshots, locks)
	cartService := service.NewCartService(repo, snapshots, locks, mergeService)

	ctx := context.Background()
	imported, skipped := 0, 0
	for _, c := range carts {
		if err := importCart(ctx, cartService, c); err != nil {
			fmt.Printf("Skipping cart %s: %v\n", c.ID, err)
			skipped++
			continue
		}
		imported++
	}

	fmt.Println("Import completed!")
	fmt.Printf("Carts imported: %d, skipped: %d\n", imported, skipped)
}

// importCart recreates c under a new id. Items are added through the service, so lines
// that match an earlier line are accumulated the same way a shopper's adds would be.
func importCart(ctx context.Context, carts service.CartService, c snapshot.Cart) error {
	created, err := carts.CreateCart(ctx, c.UserID)
	if err != nil {
		return err
	}

	for _, item := range c.CartItems {
		if !item.IsActive {
			continue
		}
		options := make([]service.OptionInput, 0, len(item.ItemOptions))
		for _, o := range item.ItemOptions {
			options = append(options, service.OptionInput{Attribute: o.Attribute, Value: o.Value})
		}
		if _, err := carts.AddItem(ctx, created.ID, item.ProdID, item.Quantity, options); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
	}
	return nil
}
