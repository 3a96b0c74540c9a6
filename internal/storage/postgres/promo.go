package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/promo"
)

const (
	promoColumns = `id, code, description, discount_type, discount_value, minimum_order_amount,
		maximum_discount_amount, usage_limit, used_count, is_active, valid_from, valid_until,
		created_at, updated_at`

	findActivePromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1 AND is_active`

	getPromoByIDSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = $1`

	listPromosSQL = `SELECT ` + promoColumns + ` FROM promo_codes
		WHERE ($1::boolean IS NULL OR is_active = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countPromosSQL = `SELECT count(*) FROM promo_codes WHERE ($1::boolean IS NULL OR is_active = $1)`

	insertPromoSQL = `INSERT INTO promo_codes (` + promoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	// updatePromoSQL writes only the supplied columns. A new usage limit
	// must still cover used_count when the row is written.
	updatePromoSQL = `UPDATE promo_codes
		SET code = COALESCE($2, code),
			description = COALESCE($3, description),
			discount_type = COALESCE($4, discount_type),
			discount_value = COALESCE($5, discount_value),
			minimum_order_amount = COALESCE($6, minimum_order_amount),
			maximum_discount_amount = CASE WHEN $7::boolean THEN NULL
				ELSE COALESCE($8, maximum_discount_amount) END,
			usage_limit = CASE WHEN $9::boolean THEN NULL
				ELSE COALESCE($10::integer, usage_limit) END,
			is_active = COALESCE($11, is_active),
			valid_from = COALESCE($12, valid_from),
			valid_until = COALESCE($13, valid_until),
			updated_at = $14
		WHERE id = $1 AND ($10::integer IS NULL OR used_count <= $10::integer)
		RETURNING ` + promoColumns

	deletePromoSQL = `DELETE FROM promo_codes WHERE id = $1`

	togglePromoSQL = `UPDATE promo_codes SET is_active = NOT is_active, updated_at = now()
		WHERE id = $1 RETURNING ` + promoColumns

	// redeemPromoSQL is the only statement that changes used_count. The guard
	// makes concurrent redemptions of the last use race safely: one matches,
	// the rest see zero rows.
	redeemPromoSQL = `UPDATE promo_codes SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND is_active AND valid_from <= now() AND valid_until >= now()
			AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING ` + promoColumns
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindActiveByCode looks up an active promo by its normalised code.
// Returns promo.ErrNotFound when no matching active promo exists.
func (r *PromoRepository) FindActiveByCode(ctx context.Context, code string) (*promo.PromoCode, error) {
	return r.getOne(ctx, r.pool, findActivePromoByCodeSQL, code)
}

// GetByID returns a promo by its identifier.
func (r *PromoRepository) GetByID(ctx context.Context, id string) (*promo.PromoCode, error) {
	return r.getOne(ctx, r.pool, getPromoByIDSQL, id)
}

// List returns one page of promos, newest first.
func (r *PromoRepository) List(ctx context.Context, f promo.Filter) ([]promo.PromoCode, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countPromosSQL, f.Active).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting promo codes: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := r.pool.Query(ctx, listPromosSQL, f.Active, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing promo codes: %w", err)
	}
	promos, err := pgx.CollectRows(rows, scanPromo)
	if err != nil {
		return nil, 0, fmt.Errorf("listing promo codes: %w", err)
	}
	return promos, total, nil
}

// Create inserts a new promo. Returns promo.ErrDuplicateCode when the code
// is taken.
func (r *PromoRepository) Create(ctx context.Context, p *promo.PromoCode) error {
	_, err := r.pool.Exec(ctx, insertPromoSQL, promoArgs(p)...)
	if isUniqueViolation(err) {
		return promo.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("creating promo code %q: %w", p.Code, err)
	}
	return nil
}

// Update writes the fields set in pt. used_count is never touched.
func (r *PromoRepository) Update(ctx context.Context, id string, pt promo.Patch, at time.Time) (*promo.PromoCode, error) {
	var discountType *string
	if pt.DiscountType != nil {
		t := string(*pt.DiscountType)
		discountType = &t
	}
	rows, err := r.pool.Query(ctx, updatePromoSQL,
		id, pt.Code, pt.Description, discountType, pt.DiscountValue, pt.MinimumOrderAmount,
		pt.ClearMaximumDiscount, pt.MaximumDiscountAmount, pt.ClearUsageLimit, pt.UsageLimit,
		pt.IsActive, pt.ValidFrom, pt.ValidUntil, at,
	)
	if err != nil {
		return nil, fmt.Errorf("updating promo code %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	switch {
	case err == nil:
		return &p, nil
	case isUniqueViolation(err):
		return nil, promo.ErrDuplicateCode
	case errors.Is(err, pgx.ErrNoRows):
		// Either the code is gone or the usage guard failed.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, promo.ErrLimitBelowUsage
	default:
		return nil, fmt.Errorf("updating promo code %q: %w", id, err)
	}
}

// Delete removes a promo.
func (r *PromoRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deletePromoSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promo code %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// Toggle flips the active flag and returns the updated promo.
func (r *PromoRepository) Toggle(ctx context.Context, id string) (*promo.PromoCode, error) {
	return r.getOne(ctx, r.pool, togglePromoSQL, id)
}

// Redeem atomically increments the usage count of an active, non-exhausted
// promo inside its validity window. Returns promo.ErrRedemptionConflict when the guard matches no row.
func (r *PromoRepository) Redeem(ctx context.Context, id string) (*promo.PromoCode, error) {
	return redeemPromo(ctx, r.pool, id)
}

func redeemPromo(ctx context.Context, q querier, id string) (*promo.PromoCode, error) {
	rows, err := q.Query(ctx, redeemPromoSQL, id)
	if err != nil {
		return nil, fmt.Errorf("redeeming promo code %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrRedemptionConflict
		}
		return nil, fmt.Errorf("redeeming promo code %q: %w", id, err)
	}
	return &p, nil
}

func (r *PromoRepository) getOne(ctx context.Context, q querier, sql string, arg any) (*promo.PromoCode, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting promo code %v: %w", arg, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promo code %v: %w", arg, err)
	}
	return &p, nil
}

func scanPromo(row pgx.CollectableRow) (promo.PromoCode, error) {
	var (
		p            promo.PromoCode
		discountType string
	)
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &discountType, &p.DiscountValue, &p.MinimumOrderAmount,
		&p.MaximumDiscountAmount, &p.UsageLimit, &p.UsedCount, &p.IsActive, &p.ValidFrom, &p.ValidUntil,
		&p.CreatedAt, &p.UpdatedAt,
	)
	p.DiscountType = promo.DiscountType(discountType)
	return p, err
}
