package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid status")
	// ErrStatusConflict is returned when the order changed status between
	// read and update.
	ErrStatusConflict = errors.New("order status changed concurrently, please retry")
)

// ProductNotFoundError indicates a line item references a missing product.
type ProductNotFoundError struct {
	ProductID string
	// Name is the client-supplied label of the line, if any.
	Name string
}

func (e *ProductNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("product %s not found", e.Name)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a product has less stock than ordered.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Name)
}

// StockConflictError indicates the stock of a product dropped below the
// ordered quantity between the availability check and the decrement.
type StockConflictError struct {
	ProductID string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock for product %s changed, please retry", e.ProductID)
}

// TransitionError indicates an illegal status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
