package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/heatsense-cli/internal/cache"
	"github.com/sells-group/heatsense-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "heatsense.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCache() (*cache.Store, error) {
	if cfg.Cache.Disabled {
		return nil, nil
	}
	return cache.New(cfg.Cache.Dir, cfg.Cache.MaxAge(), cfg.Cache.MaxSizeBytes)
}
