package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
	"github.com/xenking/voucher-engine/internal/ingest"
	"github.com/xenking/voucher-engine/internal/storage/postgres"
)

func main() {
	var (
		dataDir       string
		databaseURL   string
		discountType  string
		discountValue string
		minOrderValue string
		usageLimit    int
		expiresIn     time.Duration
		capacity      uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory with *.gz code lists, used when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discountType, "discount-type", string(discount.Percentage), "PERCENTAGE or FIXED")
	flag.StringVar(&discountValue, "discount-value", "10", "discount value of every imported voucher")
	flag.StringVar(&minOrderValue, "min-order-value", "", "optional minimum order subtotal")
	flag.IntVar(&usageLimit, "usage-limit", 1, "usage limit of every imported voucher")
	flag.DurationVar(&expiresIn, "expires-in", 30*24*time.Hour, "voucher lifetime from now")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected number of distinct codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	template, err := buildTemplate(discountType, discountValue, minOrderValue, usageLimit, expiresIn)
	if err != nil {
		slog.Error("invalid voucher template", slog.String("error", err.Error()))
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		files, err = filepath.Glob(filepath.Join(dataDir, "*.gz"))
		if err != nil {
			slog.Error("list code files", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		slog.Error("no code files found", slog.String("data_dir", dataDir))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, template, capacity, files); err != nil {
		slog.Error("voucher ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("voucher ingest completed successfully")
}

func buildTemplate(typ, value, minOrder string, limit int, expiresIn time.Duration) (voucher.Input, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return voucher.Input{}, errors.Wrap(err, "parse discount value")
	}
	in := voucher.Input{
		DiscountType:   discount.Type(typ),
		DiscountValue:  v,
		ExpirationDate: time.Now().Add(expiresIn).UTC(),
		UsageLimit:     limit,
	}
	if minOrder != "" {
		m, err := decimal.NewFromString(minOrder)
		if err != nil {
			return voucher.Input{}, errors.Wrap(err, "parse min order value")
		}
		in.MinOrderValue = &m
	}
	return in, nil
}

func run(ctx context.Context, databaseURL string, template voucher.Input, capacity uint, files []string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewVoucherRepository(pool)
	imp := ingest.New(voucher.NewService(repo), repo, template, capacity, slog.Default())

	slog.Info("importing codes", slog.Int("files", len(files)))
	start := time.Now()
	stats, err := imp.Import(ctx, files...)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("import finished",
		slog.Int("read", stats.Read),
		slog.Int("created", stats.Created),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("rejected", stats.Rejected),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
