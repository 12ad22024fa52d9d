package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/ikkim/cart-sync/internal/scheduler"
	"github.com/ikkim/cart-sync/pkg/logger"
)

// reindex republishes every cart snapshot from the database, optionally purging
// expired guest carts first.
func main() {
	purge := flag.Bool("purge-guests", false, "delete guest carts idle for longer than GUEST_CART_TTL before rebuilding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	logger.Initialize(logger.Config{
		Level:       "info",
		Format:      cfg.Log.Format,
		EnableColor: true,
	})

	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer db.Close()

	snapshots, closeCache, err := cache.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize cache", err)
	}
	defer closeCache()

	repo := repository.NewCartRepository(db.GetDB())
	locks := service.NewCartLocker()
	cartService := service.NewCartService(repo, snapshots, locks, service.NewMergeService(repo, snapshots, locks))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *purge {
		purged, err := scheduler.NewGuestCartScheduler(cartService, cfg.Cart.GuestCartTTL, "").RunOnce(ctx)
		if err != nil {
			logger.Error("Guest cart purge failed", err)
			return
		}
		logger.Info("Guest carts purged", map[string]interface{}{
			"purged": purged,
		})
	}

	rebuilt, err := cartService.RebuildAll(ctx)
	if err != nil {
		logger.Error("Rebuild interrupted", err, map[string]interface{}{
			"rebuilt": rebuilt,
		})
		return
	}
	logger.Info("Reindex finished", map[string]interface{}{
		"carts": rebuilt,
	})
}
