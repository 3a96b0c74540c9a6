package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	insertOrderSQL = `INSERT INTO orders (id, user_id, items, subtotal, discount, promo_code,
			total_amount, status, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	orderColumns = `o.id, o.user_id, u.email, u.full_name, o.items, o.subtotal, o.discount, o.promo_code,
		o.total_amount, o.status, o.shipping_address, o.created_at, o.updated_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE ($1::text = '' OR o.user_id = $1)
		ORDER BY o.created_at DESC, o.id LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1::text = '' OR user_id = $1)`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Place decrements stock, redeems the promo and inserts the order in a single
// transaction. A failed promo guard surfaces as promo.ErrRedemptionConflict.
// Stock rows are locked in the order of p.Decrements, which the caller sorts
// by product id, so concurrent checkouts cannot deadlock.
func (r *OrderRepository) Place(ctx context.Context, p *order.Placement) error {
	// The order items are serialized to JSON for storage in the JSONB column.
	itemsJSON, err := json.Marshal(p.Order.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, d := range p.Decrements {
			tag, err := tx.Exec(ctx, decrementStockSQL, d.ProductID, d.Quantity)
			if err != nil {
				return fmt.Errorf("decrementing stock of %q: %w", d.ProductID, err)
			}
			if tag.RowsAffected() == 0 {
				return &order.StockConflictError{ProductID: d.ProductID}
			}
		}

		if p.PromoID != "" {
			if _, err := redeemPromo(ctx, tx, p.PromoID); err != nil {
				return err
			}
		}

		o := p.Order
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, itemsJSON, o.Subtotal, o.Discount, o.PromoCode,
			o.TotalAmount, string(o.Status), o.ShippingAddress, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		return nil
	})
}

// GetByID returns an order with its owner's contact details.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns one page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, f.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	page := f.Page.Normalize()
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves an order from one status to another. Returns
// order.ErrStatusConflict when the stored status is no longer from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, order.ErrStatusConflict
	}
	return r.GetByID(ctx, id)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		c         order.Customer
		itemsJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &c.Email, &c.FullName, &itemsJSON, &o.Subtotal, &o.Discount, &o.PromoCode,
		&o.TotalAmount, &status, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order %q items: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.Customer = &c
	return o, nil
}
