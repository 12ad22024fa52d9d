package db

import (
	"github.com/ikkim/cart-sync/internal/app/model"
	"github.com/ikkim/cart-sync/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table of the cart aggregate in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.Cart{},
		&model.CartItem{},
		&model.ItemOption{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB runs migrations against the given connection
func MigrateDB(conn *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}
