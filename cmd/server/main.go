package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/internal/app/controller"
	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/service"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/ikkim/cart-sync/internal/router"
	"github.com/ikkim/cart-sync/internal/scheduler"
	"github.com/ikkim/cart-sync/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := cfg.Log.Level
	if logLevel == "" {
		logLevel = "info"
		if cfg.Server.Environment == "development" {
			logLevel = "debug"
		}
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      cfg.Log.Format,
		EnableColor: true,
	})

	logger.Info("Starting cart sync server", map[string]interface{}{
		"environment":  cfg.Server.Environment,
		"port":         cfg.Server.Port,
		"log_level":    logLevel,
		"cache_driver": cfg.Cache.Driver,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Initialize snapshot cache
	snapshots, closeCache, err := cache.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize cache", err)
	}
	defer func() {
		if err := closeCache(); err != nil {
			logger.Error("Failed to close cache", err)
		}
	}()

	// Initialize repositories
	cartRepo := repository.NewCartRepository(db.GetDB())

	// Initialize services
	locks := service.NewCartLocker()
	mergeService := service.NewMergeService(cartRepo, snapshots, locks)
	cartService := service.NewCartService(cartRepo, snapshots, locks, mergeService)

	// Initialize controllers
	cartController := controller.NewCartController(cartService, mergeService)
	adminController := controller.NewAdminController(cartService)

	// Start guest cart sweeper
	guestCarts := scheduler.NewGuestCartScheduler(cartService, cfg.Cart.GuestCartTTL, cfg.Cart.GuestSweepSchedule)
	if err := guestCarts.Start(); err != nil {
		logger.Fatal("Failed to start guest cart scheduler", err)
	}
	defer guestCarts.Stop()

	// Setup router
	r := router.NewRouter(cartController, adminController, cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r.Setup(),
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server stopped successfully")
}
