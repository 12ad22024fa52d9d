package cache

import (
	"fmt"

	"github.com/ikkim/cart-sync/config"
	"github.com/ikkim/cart-sync/pkg/logger"
	pkgredis "github.com/ikkim/cart-sync/pkg/redis"
)

// Open builds the backend selected by CACHE_DRIVER. The returned close func releases it.
func Open(cfg *config.Config) (Cache, func() error, error) {
	switch cfg.Cache.Driver {
	case "memory":
		logger.Warn("Using in-process cache; snapshots are not shared between instances", map[string]interface{}{
			"entry_ttl": cfg.Cache.EntryTTL.String(),
		})
		return NewMemoryCache(cfg.Cache.EntryTTL), func() error { return nil }, nil
	case "redis":
		client, err := pkgredis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		c := NewRedisCache(client, cfg.Redis.OpTimeout, cfg.Cache.EntryTTL)
		return c, func() error { return pkgredis.Close(client) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver %q", cfg.Cache.Driver)
	}
}
