package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/validation"
)

// DefaultPageSize is the catalog page size when the caller does not ask for one.
const DefaultPageSize = 12

// Input carries admin-editable product fields. Nil fields are left untouched
// on update; Name and Price are required on create.
type Input struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Image       *string
	Category    *Category
	Stock       *int
	Featured    *bool
}

// Service implements catalog administration on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns one page of products matching f and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, int, error) {
	if f.Page.Limit == 0 {
		f.Page.Limit = DefaultPageSize
	}
	f.Page = f.Page.Normalize()
	f.Search = strings.TrimSpace(f.Search)
	return s.repo.List(ctx, f)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Categories returns the categories that currently have products.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.Categories(ctx)
}

// Create validates in and stores a new product.
func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	var c validation.Collector
	c.Check(in.Name != nil && strings.TrimSpace(*in.Name) != "", "name is required")
	c.Check(in.Price != nil, "price is required")
	checkInput(&c, in)
	if err := c.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Product{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(p, normalize(in))

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update applies the non-nil fields of in to an existing product. Fields
// left nil keep their stored value, so a concurrent checkout's stock
// decrement survives an edit that does not set Stock.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	var c validation.Collector
	if in.Name != nil {
		c.Check(strings.TrimSpace(*in.Name) != "", "name must not be empty")
	}
	checkInput(&c, in)
	if err := c.Err(); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, normalize(in), s.now())
}

// Delete removes a product. Past orders keep their snapshots.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func checkInput(c *validation.Collector, in Input) {
	if in.Price != nil {
		c.Check(!in.Price.IsNegative(), "price must not be negative")
	}
	if in.Stock != nil {
		c.Check(*in.Stock >= 0, "stock must not be negative")
	}
	if in.Category != nil && *in.Category != "" {
		c.Check(in.Category.Valid(), "category must be one of Non-Veg Pickles, Veg Pickles, Podulu, Snacks")
	}
}

// normalize trims text fields and rounds the price to cents.
func normalize(in Input) Input {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	in.Name = trim(in.Name)
	in.Description = trim(in.Description)
	in.Image = trim(in.Image)
	if in.Price != nil {
		price := in.Price.Round(2)
		in.Price = &price
	}
	return in
}

// apply copies the non-nil fields of in onto p.
func apply(p *Product, in Input) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
}
