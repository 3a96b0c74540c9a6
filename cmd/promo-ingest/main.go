// Command promo-ingest bulk-imports promo codes from gzipped code lists. A
// code is imported when it appears in at least -min-files of the inputs, and
// every imported code shares the discount template given by flags.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		dataDir     string
		cfg         config
		discount    string
		minOrder    string
		maxDiscount string
		usageLimit  int
		validDays   int
		inactive    bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&dataDir, "data-dir", "data", "directory with *.gz code lists, used when no files are given")
	flag.IntVar(&cfg.MinFiles, "min-files", 2, "import codes found in at least this many files")
	flag.IntVar(&cfg.MinLen, "min-len", 4, "minimum code length")
	flag.IntVar(&cfg.MaxLen, "max-len", 20, "maximum code length")
	flag.UintVar(&cfg.Capacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Float64Var(&cfg.FalsePositiveRate, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&cfg.BatchSize, "batch-size", 1000, "codes per insert batch")
	flag.StringVar(&cfg.Template.Description, "description", "", "description of every imported code")
	flag.StringVar((*string)(&cfg.Template.DiscountType), "type", string(promo.DiscountPercentage), "discount type: percentage or fixed")
	flag.StringVar(&discount, "value", "10", "discount value: percent or currency amount")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order amount")
	flag.StringVar(&maxDiscount, "max-discount", "", "cap for percentage discounts (empty for none)")
	flag.IntVar(&usageLimit, "usage-limit", 0, "redemptions per code (0 for unlimited)")
	flag.IntVar(&validDays, "valid-days", 30, "days each code stays valid from now")
	flag.BoolVar(&inactive, "inactive", false, "import codes deactivated")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	files := flag.Args()
	if len(files) == 0 {
		files, err = filepath.Glob(filepath.Join(dataDir, "*.gz"))
		if err != nil {
			lg.Fatal("List data dir", zap.Error(err))
		}
	}
	cfg.Files = files

	now := time.Now().UTC()
	cfg.Template.ValidFrom = now
	cfg.Template.ValidUntil = now.AddDate(0, 0, validDays)
	active := !inactive
	cfg.Template.IsActive = &active
	if usageLimit > 0 {
		cfg.Template.UsageLimit = &usageLimit
	}
	if err := parseAmounts(&cfg.Template, discount, minOrder, maxDiscount); err != nil {
		lg.Fatal("Invalid discount template", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, cfg); err != nil {
		lg.Fatal("Promo ingest failed", zap.Error(err))
	}
	lg.Info("Promo ingest completed")
}

func parseAmounts(in *promo.Input, value, minOrder, maxDiscount string) error {
	var err error
	if in.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return errors.Wrap(err, "value")
	}
	if in.MinimumOrderAmount, err = decimal.NewFromString(minOrder); err != nil {
		return errors.Wrap(err, "min-order")
	}
	if maxDiscount != "" {
		v, err := decimal.NewFromString(maxDiscount)
		if err != nil {
			return errors.Wrap(err, "max-discount")
		}
		in.MaximumDiscountAmount = &v
	}
	return nil
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, cfg config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	codes, err := findCodes(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "find codes")
	}
	lg.Info("Codes selected", zap.Int("count", len(codes)), zap.Int("min_files", cfg.MinFiles))
	if len(codes) == 0 {
		return nil
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	inserted, err := importCodes(ctx, lg, postgres.NewPromoRepository(pool), cfg, codes, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "import codes")
	}
	lg.Info("Import finished", zap.Int("inserted", inserted), zap.Int("skipped_existing", len(codes)-inserted))
	return nil
}
