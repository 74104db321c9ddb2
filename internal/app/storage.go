package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/voucher-engine/internal/catalog"
	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/product"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
	"github.com/xenking/voucher-engine/internal/storage/memory"
	"github.com/xenking/voucher-engine/internal/storage/postgres"
)

// storage bundles the repositories of one backend.
type storage struct {
	products   product.Repository
	orders     order.Repository
	vouchers   voucher.Repository
	promotions promotion.Repository
	tx         order.Transactor

	ping  func(ctx context.Context) error
	close func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(lg, cfg.ProductsFile)
	case StoragePostgres:
		return openPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}

func openPostgres(ctx context.Context, databaseURL string) (*storage, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &storage{
		products:   postgres.NewProductRepository(pool),
		orders:     postgres.NewOrderRepository(pool),
		vouchers:   postgres.NewVoucherRepository(pool),
		promotions: postgres.NewPromotionRepository(pool),
		tx:         postgres.NewTransactor(pool),
		ping:       pool.Ping,
		close:      pool.Close,
	}, nil
}

// openMemory keeps everything in process. The catalog file is optional.
func openMemory(lg *zap.Logger, productsFile string) (*storage, error) {
	store := memory.New()
	if productsFile != "" {
		products, err := catalog.Load(productsFile)
		if err != nil {
			return nil, errors.Wrap(err, "load catalog")
		}
		store.AddProducts(products...)
		lg.Info("Catalog loaded", zap.Int("products", len(products)), zap.String("path", productsFile))
	}
	return &storage{
		products:   store.Products(),
		orders:     store.Orders(),
		vouchers:   store.Vouchers(),
		promotions: store.Promotions(),
		tx:         store,
		ping:       func(context.Context) error { return nil },
		close:      func() {},
	}, nil
}
