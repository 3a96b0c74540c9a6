package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
			image = EXCLUDED.image, category = EXCLUDED.category, stock = EXCLUDED.stock,
			featured = EXCLUDED.featured, updated_at = EXCLUDED.updated_at`

	// upsertPromoSQL keys on code and never resets used_count.
	upsertPromoSQL = `INSERT INTO promo_codes (` + promoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description, discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, minimum_order_amount = EXCLUDED.minimum_order_amount,
			maximum_discount_amount = EXCLUDED.maximum_discount_amount, usage_limit = EXCLUDED.usage_limit,
			is_active = EXCLUDED.is_active, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, updated_at = EXCLUDED.updated_at`

	importPromoSQL = `INSERT INTO promo_codes (` + promoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO NOTHING`

	// upsertUserSQL keys on email and keeps the original id.
	upsertUserSQL = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash, full_name = EXCLUDED.full_name,
			is_admin = EXCLUDED.is_admin, updated_at = EXCLUDED.updated_at`
)

// Upsert inserts p or overwrites the product with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Image, nullCategory(p.Category),
		p.Stock, p.Featured, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts p or overwrites the definition of the promo with the same
// code, keeping its usage count.
func (r *PromoRepository) Upsert(ctx context.Context, p *promo.PromoCode) error {
	_, err := r.pool.Exec(ctx, upsertPromoSQL, promoArgs(p)...)
	if err != nil {
		return fmt.Errorf("upserting promo code %q: %w", p.Code, err)
	}
	return nil
}

// Import inserts promos in one batch, skipping codes that already exist.
// It returns the number of inserted rows.
func (r *PromoRepository) Import(ctx context.Context, promos []promo.PromoCode) (int, error) {
	batch := &pgx.Batch{}
	for i := range promos {
		batch.Queue(importPromoSQL, promoArgs(&promos[i])...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int
	for i := range promos {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("importing promo code %q: %w", promos[i].Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Upsert inserts u or overwrites the account with the same email.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, upsertUserSQL,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}

func promoArgs(p *promo.PromoCode) []any {
	return []any{
		p.ID, p.Code, p.Description, string(p.DiscountType), p.DiscountValue, p.MinimumOrderAmount,
		p.MaximumDiscountAmount, p.UsageLimit, p.UsedCount, p.IsActive, p.ValidFrom, p.ValidUntil,
		p.CreatedAt, p.UpdatedAt,
	}
}
