// Package store picks the persistence backend named by STORE_DRIVER.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/mongox"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/store/memory"
)

// Open connects to the configured backend. With migrate set the schema
// (postgres) or indexes (mongo) are applied before the store is returned.
func Open(ctx context.Context, cfg config.Config, migrate bool, log *zap.Logger) (domain.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil

	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver))
		return postgres.NewStore(db), nil

	case config.DriverMongo:
		db, err := mongox.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if migrate {
			if err := mongox.EnsureIndexes(ctx, db); err != nil {
				_ = db.Client().Disconnect(ctx)
				return nil, fmt.Errorf("mongo indexes: %w", err)
			}
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver), zap.String("db", cfg.MongoDB))
		return mongox.NewStore(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
