package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/catalog"
	"github.com/xenking/voucher-engine/internal/domain/auth"
	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
	"github.com/xenking/voucher-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "secret for demo tokens (or VOUCHER_JWT_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("VOUCHER_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if jwtSecret != "" {
		if err := printTokens(jwtSecret); err != nil {
			slog.Error("issue demo tokens", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading products file", slog.String("path", productsFile))
	products, err := catalog.Load(productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	slog.Info("upserted products", slog.Int("count", len(products)))

	if err := seedVouchers(ctx, voucher.NewService(postgres.NewVoucherRepository(pool))); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}
	if err := seedPromotions(ctx, promotion.NewService(postgres.NewPromotionRepository(pool))); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	return nil
}

func seedVouchers(ctx context.Context, svc *voucher.Service) error {
	expires := time.Now().AddDate(1, 0, 0).UTC()
	minOrder := decimal.NewFromInt(50)

	vouchers := []voucher.Input{
		{Code: "WELCOME10", DiscountType: discount.Percentage, DiscountValue: decimal.NewFromInt(10), ExpirationDate: expires, UsageLimit: 1000},
		{Code: "SAVE15", DiscountType: discount.Fixed, DiscountValue: decimal.NewFromInt(15), ExpirationDate: expires, UsageLimit: 500, MinOrderValue: &minOrder},
		{Code: "HALFOFF", DiscountType: discount.Percentage, DiscountValue: decimal.NewFromInt(50), ExpirationDate: expires, UsageLimit: 10},
	}
	for _, in := range vouchers {
		if err := created(svc.Create(ctx, in)); err != nil {
			return errors.Wrapf(err, "create voucher %s", in.Code)
		}
		slog.Info("seeded voucher", slog.String("code", in.Code))
	}
	return nil
}

func seedPromotions(ctx context.Context, svc *promotion.Service) error {
	expires := time.Now().AddDate(0, 6, 0).UTC()

	promotions := []promotion.Input{
		{Code: "TECHWEEK", DiscountType: discount.Percentage, DiscountValue: decimal.NewFromInt(20), ExpirationDate: expires, UsageLimit: 1000, EligibleCategories: []string{"Electronics"}},
		{Code: "BOOKWORM", DiscountType: discount.Fixed, DiscountValue: decimal.NewFromInt(5), ExpirationDate: expires, UsageLimit: 200, EligibleCategories: []string{"Books"}},
		{Code: "COFFEE", DiscountType: discount.Percentage, DiscountValue: decimal.NewFromInt(15), ExpirationDate: expires, UsageLimit: 100, EligibleItems: []string{"6"}},
	}
	for _, in := range promotions {
		if err := created(svc.Create(ctx, in)); err != nil {
			return errors.Wrapf(err, "create promotion %s", in.Code)
		}
		slog.Info("seeded promotion", slog.String("code", in.Code))
	}
	return nil
}

// created treats an existing code as success so the seed can be rerun.
func created[T any](_ T, err error) error {
	if errors.Is(err, voucher.ErrDuplicateCode) || errors.Is(err, promotion.ErrDuplicateCode) {
		return nil
	}
	return err
}

func printTokens(secret string) error {
	tokens := auth.NewTokens(secret, 24*time.Hour)
	for _, c := range []auth.Caller{
		{ID: "admin", Role: auth.RoleAdmin},
		{ID: "customer-1", Role: auth.RoleCustomer},
	} {
		token, err := tokens.Issue(c)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", c.ID)
		}
		slog.Info("demo token", slog.String("caller", c.ID), slog.String("role", string(c.Role)), slog.String("token", token))
	}
	return nil
}
