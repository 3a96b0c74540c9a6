package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/validation"
)

// --- Fakes ---

type fakeProducts struct {
	byID map[string]product.Product
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePromos struct {
	quote    *promo.Quote
	err      error
	redeemed []string
}

func (f *fakePromos) Quote(_ context.Context, _ string, amount decimal.Decimal) (*promo.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.FinalAmount = amount.Sub(q.DiscountAmount)
	return &q, nil
}

func (f *fakePromos) RecordRedemption(_ context.Context, code string) {
	f.redeemed = append(f.redeemed, code)
}

type fakeOrders struct {
	placed   []*Placement
	placeErr error
	byID     map[string]*Order
	lastList Filter
	updates  int
	updErr   error
}

func newFakeOrders(orders ...*Order) *fakeOrders {
	f := &fakeOrders{byID: map[string]*Order{}}
	for _, o := range orders {
		f.byID[o.ID] = o
	}
	return f
}

func (f *fakeOrders) Place(_ context.Context, p *Placement) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, p)
	f.byID[p.Order.ID] = p.Order
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) List(_ context.Context, filter Filter) ([]Order, int, error) {
	f.lastList = filter
	return nil, 0, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) (*Order, error) {
	f.updates++
	if f.updErr != nil {
		return nil, f.updErr
	}
	o := f.byID[id]
	if o.Status != from {
		return nil, ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	cp := *o
	return &cp, nil
}

type fakePublisher struct {
	events []Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e Event) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeInvalidator struct {
	ids    []string
	ctxErr error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, ids ...string) error {
	f.ids = append(f.ids, ids...)
	f.ctxErr = ctx.Err()
	return nil
}

// stalledPublisher holds each event until release is closed or its context
// ends, and records the context error it saw.
type stalledPublisher struct {
	release chan struct{}
	events  []Event
	ctxErrs []error
}

func (f *stalledPublisher) Publish(ctx context.Context, e Event) error {
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	f.events = append(f.events, e)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return ctx.Err()
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	products    *fakeProducts
	promos      *fakePromos
	orders      *fakeOrders
	publisher   *fakePublisher
	invalidator *fakeInvalidator
	svc         *Service
}

func newFixture(t *testing.T, products ...product.Product) *fixture {
	t.Helper()
	f := &fixture{
		products:    &fakeProducts{byID: map[string]product.Product{}},
		promos:      &fakePromos{},
		orders:      newFakeOrders(),
		publisher:   &fakePublisher{},
		invalidator: &fakeInvalidator{},
	}
	for _, p := range products {
		f.products.byID[p.ID] = p
	}
	svc, err := NewService(f.products, f.promos, f.orders,
		WithPublisher(f.publisher),
		WithInvalidator(f.invalidator),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func pickle(id, name, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    dec(price),
		Category: product.CategoryVegPickles,
		Stock:    stock,
	}
}

// --- Tests ---

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  PlaceOrderRequest
	}{
		{name: "empty items", req: PlaceOrderRequest{}},
		{name: "zero quantity", req: PlaceOrderRequest{Items: []ItemRequest{{ProductID: "p1"}}}},
		{name: "missing product id", req: PlaceOrderRequest{Items: []ItemRequest{{Quantity: 1}}}},
		{
			name: "non-positive total",
			req: PlaceOrderRequest{
				Items:       []ItemRequest{{ProductID: "p1", Quantity: 1}},
				TotalAmount: func() *decimal.Decimal { d := dec("0"); return &d }(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, pickle("p1", "Mango", "100", 10))

			_, err := f.svc.PlaceOrder(context.Background(), "u1", tt.req)
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Empty(t, f.orders.placed)
		})
	}
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "missing", Name: "Gongura", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
	assert.Equal(t, "product Gongura not found", err.Error())
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		f := newFixture(t, pickle("p1", "Mango", "100", 2))

		_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
			Items: []ItemRequest{{ProductID: "p1", Quantity: 3}},
		})

		var isErr *InsufficientStockError
		require.ErrorAs(t, err, &isErr)
		assert.Equal(t, "Mango", isErr.Name)
		assert.Equal(t, 2, isErr.Available)
		assert.Equal(t, "insufficient stock for Mango", err.Error())
		assert.Empty(t, f.orders.placed)
	})

	t.Run("duplicate lines are summed", func(t *testing.T) {
		f := newFixture(t, pickle("p1", "Mango", "100", 5))

		_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
			Items: []ItemRequest{
				{ProductID: "p1", Quantity: 3},
				{ProductID: "p1", Quantity: 3},
			},
		})

		var isErr *InsufficientStockError
		require.ErrorAs(t, err, &isErr)
		assert.Equal(t, 6, isErr.Requested)
	})
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(t,
		pickle("p2", "Chicken", "450", 10),
		pickle("p1", "Mango", "199.50", 10),
	)

	o, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items: []ItemRequest{
			{ProductID: "p2", Name: "stale name", Quantity: 1},
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		ShippingAddress: " 12 MG Road ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "12 MG Road", o.ShippingAddress)
	assert.True(t, dec("1299").Equal(o.Subtotal), o.Subtotal.String())
	assert.True(t, o.Discount.IsZero())
	assert.True(t, dec("1299").Equal(o.TotalAmount))

	require.Len(t, o.Items, 3)
	assert.Equal(t, "Chicken", o.Items[0].Name)
	assert.True(t, dec("450").Equal(o.Items[0].Price))

	require.Len(t, f.orders.placed, 1)
	placement := f.orders.placed[0]
	assert.Empty(t, placement.PromoID)
	assert.Equal(t, []Decrement{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 2},
	}, placement.Decrements)

	f.svc.Close()
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventPlaced, f.publisher.events[0].Type)
	assert.Equal(t, o.ID, f.publisher.events[0].OrderID)
	assert.ElementsMatch(t, []string{"p1", "p2"}, f.invalidator.ids)
}

func TestPlaceOrder_WithPromo(t *testing.T) {
	f := newFixture(t, pickle("p1", "Mango", "150", 10))
	f.promos.quote = &promo.Quote{
		PromoID:        "promo-1",
		Code:           "SAVE50",
		DiscountType:   promo.DiscountFixed,
		DiscountValue:  dec("50"),
		DiscountAmount: dec("50"),
	}
	total := dec("250")

	o, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items:       []ItemRequest{{ProductID: "p1", Quantity: 2}},
		PromoCode:   "save50",
		TotalAmount: &total,
	})
	require.NoError(t, err)

	assert.Equal(t, "SAVE50", o.PromoCode)
	assert.True(t, dec("300").Equal(o.Subtotal))
	assert.True(t, dec("50").Equal(o.Discount))
	assert.True(t, dec("250").Equal(o.TotalAmount))
	assert.Equal(t, "promo-1", f.orders.placed[0].PromoID)
	assert.Equal(t, []string{"SAVE50"}, f.promos.redeemed)
}

func TestPlaceOrder_PromoRejected(t *testing.T) {
	f := newFixture(t, pickle("p1", "Mango", "100", 10))
	f.promos.err = &promo.BelowMinimumError{Minimum: dec("200")}

	_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items:     []ItemRequest{{ProductID: "p1", Quantity: 1}},
		PromoCode: "SAVE50",
	})

	var bmErr *promo.BelowMinimumError
	require.ErrorAs(t, err, &bmErr)
	assert.Empty(t, f.orders.placed)
	assert.Empty(t, f.promos.redeemed)
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	f := newFixture(t, pickle("p1", "Mango", "100", 10))

	t.Run("within tolerance", func(t *testing.T) {
		total := dec("100.01")
		_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
			Items:       []ItemRequest{{ProductID: "p1", Quantity: 1}},
			TotalAmount: &total,
		})
		require.NoError(t, err)
	})

	t.Run("rejected", func(t *testing.T) {
		total := dec("90")
		_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
			Items:       []ItemRequest{{ProductID: "p1", Quantity: 1}},
			TotalAmount: &total,
		})
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"total amount mismatch: expected 100.00"}, verr.Details)
	})
}

func TestPlaceOrder_SideEffectsOutliveRequest(t *testing.T) {
	products := &fakeProducts{byID: map[string]product.Product{
		"p1": pickle("p1", "Mango", "100", 10),
	}}
	invalidator := &fakeInvalidator{}
	publisher := &stalledPublisher{release: make(chan struct{})}
	svc, err := NewService(products, &fakePromos{}, newFakeOrders(),
		WithPublisher(publisher),
		WithInvalidator(invalidator),
		WithSideEffectTimeout(time.Minute),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	o, err := svc.PlaceOrder(ctx, "u1", PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "checkout waited on the publisher")

	assert.Equal(t, []string{"p1"}, invalidator.ids)
	assert.NoError(t, invalidator.ctxErr)

	// The event is still delivered after the request deadline passes.
	<-ctx.Done()
	close(publisher.release)
	svc.Close()

	require.Len(t, publisher.events, 1)
	assert.Equal(t, o.ID, publisher.events[0].OrderID)
	assert.NoError(t, publisher.ctxErrs[0])
}

func TestPlaceOrder_Conflict(t *testing.T) {
	f := newFixture(t, pickle("p1", "Mango", "100", 10))
	f.orders.placeErr = &StockConflictError{ProductID: "p1"}

	_, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	var scErr *StockConflictError
	require.ErrorAs(t, err, &scErr)
	f.svc.Close()
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.invalidator.ids)
}

func TestPlaceOrder_PublishFailureIgnored(t *testing.T) {
	f := newFixture(t, pickle("p1", "Mango", "100", 10))
	f.publisher.err = errors.New("broker down")

	o, err := f.svc.PlaceOrder(context.Background(), "u1", PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestService_Get(t *testing.T) {
	f := newFixture(t)
	f.orders.byID["o1"] = &Order{ID: "o1", UserID: "owner", Status: StatusPending}
	ctx := context.Background()

	_, err := f.svc.Get(ctx, Viewer{UserID: "owner"}, "o1")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, Viewer{UserID: "admin", IsAdmin: true}, "o1")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, Viewer{UserID: "stranger"}, "o1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Get(ctx, Viewer{UserID: "owner"}, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.List(ctx, Viewer{UserID: "u1"}, paging.Request{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "u1", f.orders.lastList.UserID)
	assert.Equal(t, paging.Request{Page: 2, Limit: 5}, f.orders.lastList.Page)

	_, _, err = f.svc.List(ctx, Viewer{UserID: "admin", IsAdmin: true}, paging.Request{})
	require.NoError(t, err)
	assert.Empty(t, f.orders.lastList.UserID)
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    Status
		to      string
		want    Status
		wantErr any
		updates int
	}{
		{name: "pending to processing", from: StatusPending, to: "processing", want: StatusProcessing, updates: 1},
		{name: "shipped to delivered", from: StatusShipped, to: "delivered", want: StatusDelivered, updates: 1},
		{name: "shipped to cancelled", from: StatusShipped, to: "cancelled", want: StatusCancelled, updates: 1},
		{name: "same status is a no-op", from: StatusProcessing, to: "processing", want: StatusProcessing},
		{name: "unknown status", from: StatusPending, to: "lost", wantErr: ErrInvalidStatus},
		{name: "skip ahead", from: StatusPending, to: "delivered", wantErr: &TransitionError{}},
		{name: "delivered is terminal", from: StatusDelivered, to: "cancelled", wantErr: &TransitionError{}},
		{name: "cancelled is terminal", from: StatusCancelled, to: "pending", wantErr: &TransitionError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.byID["o1"] = &Order{ID: "o1", UserID: "u1", Status: tt.from}

			got, err := f.svc.UpdateStatus(ctx, "o1", tt.to)
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.Status)
			case error:
				var trErr *TransitionError
				if errors.As(want, &trErr) {
					require.ErrorAs(t, err, &trErr)
				} else {
					require.ErrorIs(t, err, want)
				}
			}
			assert.Equal(t, tt.updates, f.orders.updates)
			f.svc.Close()
			assert.Len(t, f.publisher.events, tt.updates)
		})
	}
}

func TestService_UpdateStatusConflict(t *testing.T) {
	f := newFixture(t)
	f.orders.byID["o1"] = &Order{ID: "o1", Status: StatusPending}
	f.orders.updErr = ErrStatusConflict

	_, err := f.svc.UpdateStatus(context.Background(), "o1", "processing")
	require.ErrorIs(t, err, ErrStatusConflict)
}
