package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
	Image       string          `json:"image"`
}

type options struct {
	databaseURL   string
	productsFile  string
	adminEmail    string
	adminPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.adminEmail, "admin-email", "", "admin account email (or ADMIN_EMAIL env)")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin account password (or ADMIN_PASSWORD env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = firstNonEmpty(opts.databaseURL, os.Getenv("DATABASE_URL"))
	opts.adminEmail = firstNonEmpty(opts.adminEmail, os.Getenv("ADMIN_EMAIL"), "admin@thepicklemom.com")
	opts.adminPassword = firstNonEmpty(opts.adminPassword, os.Getenv("ADMIN_PASSWORD"))
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if len(opts.adminPassword) < auth.MinPasswordLength {
		lg.Fatal("Admin password is required: set --admin-password or ADMIN_PASSWORD",
			zap.Int("min_length", auth.MinPasswordLength))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed", zap.String("admin_email", opts.adminEmail))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	now := time.Now().UTC()
	if err := seedAdmin(ctx, lg, postgres.NewUserRepository(pool), opts, now); err != nil {
		return errors.Wrap(err, "seed admin")
	}
	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile, now); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPromos(ctx, lg, postgres.NewPromoRepository(pool), now); err != nil {
		return errors.Wrap(err, "seed promos")
	}
	return nil
}

func seedAdmin(ctx context.Context, lg *zap.Logger, users *postgres.UserRepository, opts options, now time.Time) error {
	hash, err := auth.HashPassword(opts.adminPassword)
	if err != nil {
		return err
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(opts.adminEmail),
		PasswordHash: hash,
		FullName:     "Admin User",
		IsAdmin:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Upsert(ctx, u); err != nil {
		return err
	}
	lg.Info("Upserted admin user", zap.String("email", u.Email))
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string, now time.Time) error {
	lg.Info("Reading products file", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		category, err := product.ParseCategory(p.Category)
		if err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
		if err := repo.Upsert(ctx, &product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Image:       p.Image,
			Category:    category,
			Stock:       p.Stock,
			Featured:    p.Featured,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func seedPromos(ctx context.Context, lg *zap.Logger, repo *postgres.PromoRepository, now time.Time) error {
	limit := 100
	promos := []promo.PromoCode{
		{
			Code:               "WELCOME10",
			Description:        "10% off your first order, up to 100",
			DiscountType:       promo.DiscountPercentage,
			DiscountValue:      decimal.NewFromInt(10),
			MinimumOrderAmount: decimal.NewFromInt(299),
			MaximumDiscountAmount: decimal.NewNullDecimal(
				decimal.NewFromInt(100),
			),
		},
		{
			Code:               "FLAT50",
			Description:        "50 off orders above 500",
			DiscountType:       promo.DiscountFixed,
			DiscountValue:      decimal.NewFromInt(50),
			MinimumOrderAmount: decimal.NewFromInt(500),
			UsageLimit:         &limit,
		},
	}

	for i := range promos {
		p := &promos[i]
		p.ID = uuid.NewString()
		p.IsActive = true
		p.ValidFrom = now.AddDate(0, 0, -1)
		p.ValidUntil = now.AddDate(1, 0, 0)
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
		lg.Info("Upserted promo code", zap.String("code", p.Code), zap.String("description", p.Description))
	}
	return nil
}
