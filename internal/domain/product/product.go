package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Category is the closed set of catalog sections.
type Category string

const (
	CategoryNonVegPickles Category = "Non-Veg Pickles"
	CategoryVegPickles    Category = "Veg Pickles"
	CategoryPodulu        Category = "Podulu"
	CategorySnacks        Category = "Snacks"
)

// AllCategories lists every category in display order.
func AllCategories() []Category {
	return []Category{CategoryNonVegPickles, CategoryVegPickles, CategoryPodulu, CategorySnacks}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryNonVegPickles, CategoryVegPickles, CategoryPodulu, CategorySnacks:
		return true
	default:
		return false
	}
}

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", errors.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Image       string
	// Category is empty for uncategorised products.
	Category  Category
	Stock     int
	Featured  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows a catalog listing.
type Filter struct {
	Category Category
	Featured *bool
	Search   string
	Page     paging.Request
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// Update applies the non-nil fields of in to the stored product in one
	// statement and returns the row as stored. Stock is only written when
	// in.Stock is set.
	Update(ctx context.Context, id string, in Input, at time.Time) (*Product, error)
	Delete(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]Category, error)
}
