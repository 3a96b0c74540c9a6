package product

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/validation"
)

type fakeRepo struct {
	byID       map[string]*Product
	lastFilter Filter
	lastUpdate *Input
	gets       int
}

func newFakeRepo(products ...Product) *fakeRepo {
	r := &fakeRepo{byID: map[string]*Product{}}
	for i := range products {
		r.byID[products[i].ID] = &products[i]
	}
	return r
}

func (r *fakeRepo) List(_ context.Context, f Filter) ([]Product, int, error) {
	r.lastFilter = f
	return nil, 0, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*Product, error) {
	r.gets++
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, p *Product) error {
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, id string, in Input, at time.Time) (*Product, error) {
	r.lastUpdate = &in
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	apply(p, in)
	p.UpdatedAt = at
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeRepo) Categories(context.Context) ([]Category, error) {
	return AllCategories(), nil
}

func ptr[T any](v T) *T { return &v }

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Podulu")
	require.NoError(t, err)
	assert.Equal(t, CategoryPodulu, c)

	_, err = ParseCategory("Sweets")
	require.Error(t, err)
}

func TestService_Create(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	p, err := svc.Create(context.Background(), Input{
		Name:     ptr("  Mango Pickle "),
		Price:    ptr(decimal.RequireFromString("249.999")),
		Category: ptr(CategoryVegPickles),
		Stock:    ptr(20),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Mango Pickle", p.Name)
	assert.True(t, decimal.RequireFromString("250").Equal(p.Price))
	assert.Equal(t, 20, p.Stock)
	assert.Contains(t, repo.byID, p.ID)
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Create(context.Background(), Input{
		Price:    ptr(decimal.NewFromInt(-1)),
		Stock:    ptr(-3),
		Category: ptr(Category("Sweets")),
	})

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Details, 4)
}

func TestService_UpdatePartial(t *testing.T) {
	repo := newFakeRepo(Product{
		ID:    "p1",
		Name:  "Chicken Pickle",
		Price: decimal.NewFromInt(300),
		Stock: 5,
	})
	svc := NewService(repo)

	p, err := svc.Update(context.Background(), "p1", Input{Stock: ptr(9)})
	require.NoError(t, err)

	assert.Equal(t, "Chicken Pickle", p.Name)
	assert.Equal(t, 9, p.Stock)
	assert.True(t, decimal.NewFromInt(300).Equal(repo.byID["p1"].Price))
}

func TestService_UpdateKeepsConcurrentStockChange(t *testing.T) {
	repo := newFakeRepo(Product{
		ID:    "p1",
		Name:  "Chicken Pickle",
		Price: decimal.NewFromInt(300),
		Stock: 5,
	})
	svc := NewService(repo)

	// The admin form was loaded with stock 5, then a checkout took 3.
	loaded, err := svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	repo.byID["p1"].Stock -= 3

	p, err := svc.Update(context.Background(), loaded.ID, Input{Name: ptr(" Gongura Chicken ")})
	require.NoError(t, err)

	assert.Equal(t, "Gongura Chicken", p.Name)
	assert.Equal(t, 2, p.Stock)
	assert.Equal(t, 2, repo.byID["p1"].Stock)
	require.NotNil(t, repo.lastUpdate)
	assert.Nil(t, repo.lastUpdate.Stock)
	assert.Equal(t, 1, repo.gets)
}

func TestService_UpdateMissing(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Update(context.Background(), "nope", Input{Stock: ptr(1)})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListDefaults(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, _, err := svc.List(context.Background(), Filter{Search: "  mango "})
	require.NoError(t, err)

	assert.Equal(t, "mango", repo.lastFilter.Search)
	assert.Equal(t, 1, repo.lastFilter.Page.Page)
	assert.Equal(t, DefaultPageSize, repo.lastFilter.Page.Limit)
}
