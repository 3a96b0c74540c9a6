package order

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/validation"
)

// totalTolerance is how far a client-computed total may drift from the
// server's before the order is rejected.
var totalTolerance = decimal.RequireFromString("0.01")

// ItemRequest is one requested line. Only ProductID and Quantity are
// trusted; Name is used in error messages.
type ItemRequest struct {
	ProductID string
	Name      string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items []ItemRequest
	// TotalAmount is the client's view of the amount due, checked against
	// the server computation when set.
	TotalAmount     *decimal.Decimal
	ShippingAddress string
	PromoCode       string
}

// Viewer is the authenticated caller of a read.
type Viewer struct {
	UserID  string
	IsAdmin bool
}

// ProductReader loads the products referenced by an order.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// PromoQuoter prices promo codes and counts their redemptions.
type PromoQuoter interface {
	Quote(ctx context.Context, code string, orderAmount decimal.Decimal) (*promo.Quote, error)
	RecordRedemption(ctx context.Context, code string)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where order events are sent.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithInvalidator sets the catalog cache dropped after stock changes.
func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidator = i }
}

// WithMeterProvider sets the provider for order metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSideEffectTimeout bounds each cache invalidation and event publish
// made after a commit.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *Service) { s.sideEffectTimeout = d }
}

const (
	defaultSideEffectTimeout = 5 * time.Second
	eventQueueSize           = 1024
)

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// Service encapsulates order placement and fulfilment.
type Service struct {
	products ProductReader
	promos   PromoQuoter
	orders   Repository

	publisher      Publisher
	invalidator    Invalidator
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	now            func() time.Time

	sideEffectTimeout time.Duration
	events            chan queuedEvent
	sent              chan struct{}
	closeOnce         sync.Once

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products ProductReader,
	promos PromoQuoter,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:       products,
		promos:         promos,
		orders:         orders,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
		now:            time.Now,

		sideEffectTimeout: defaultSideEffectTimeout,
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer("storefront/order")
	meter := s.meterProvider.Meter("storefront/order")

	var err error
	if s.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	if s.failed, err = meter.Int64Counter("orders.rejected",
		metric.WithDescription("Checkouts rejected by validation or conflicts"),
	); err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	if s.publisher != nil {
		s.events = make(chan queuedEvent, eventQueueSize)
		s.sent = make(chan struct{})
		go s.sendEvents()
	}
	return s, nil
}

// PlaceOrder validates the cart against live stock and prices, applies the
// promo code and commits the order, stock decrements and promo redemption
// atomically. Validation failures leave the store untouched.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1)
		}
		span.End()
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Sum quantities per product so duplicate lines are checked together.
	wanted := make(map[string]int, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if _, seen := wanted[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, item := range req.Items {
		if _, ok := byID[item.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID, Name: item.Name}
		}
	}
	for _, id := range ids {
		p := byID[id]
		if p.Stock < wanted[id] {
			return nil, &InsufficientStockError{
				ProductID: id,
				Name:      p.Name,
				Available: p.Stock,
				Requested: wanted[id],
			}
		}
	}

	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		p := byID[item.ProductID]
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
		}
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	var applied *promo.Quote
	if code := promo.NormalizeCode(req.PromoCode); code != "" {
		applied, err = s.promos.Quote(ctx, code, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "apply promo")
		}
		discount = applied.DiscountAmount
		span.SetAttributes(attribute.String("promo.code", applied.Code))
	}
	total := subtotal.Sub(discount)

	if req.TotalAmount != nil && req.TotalAmount.Sub(total).Abs().GreaterThan(totalTolerance) {
		return nil, validation.New("total amount mismatch: expected " + total.StringFixed(2))
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           items,
		Subtotal:        subtotal,
		Discount:        discount,
		TotalAmount:     total,
		Status:          StatusPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	sort.Strings(ids)
	placement := &Placement{Order: o, Decrements: make([]Decrement, len(ids))}
	for i, id := range ids {
		placement.Decrements[i] = Decrement{ProductID: id, Quantity: wanted[id]}
	}
	if applied != nil {
		o.PromoCode = applied.Code
		placement.PromoID = applied.PromoID
	}

	if err := s.orders.Place(ctx, placement); err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	s.placed.Add(ctx, 1)
	if applied != nil {
		s.promos.RecordRedemption(ctx, applied.Code)
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	s.invalidate(ctx, ids)
	s.publish(ctx, o, EventPlaced)
	return o, nil
}

func validateRequest(req PlaceOrderRequest) error {
	var c validation.Collector
	c.Check(len(req.Items) > 0, "items must contain at least one item")
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			c.Addf("items[%d].productId is required", i)
		}
		if item.Quantity < 1 {
			c.Addf("items[%d].quantity must be at least 1", i)
		}
	}
	if req.TotalAmount != nil {
		c.Check(req.TotalAmount.IsPositive(), "totalAmount must be positive")
	}
	return c.Err()
}

// List returns the viewer's orders, or every order for administrators,
// newest first.
func (s *Service) List(ctx context.Context, v Viewer, page paging.Request) ([]Order, int, error) {
	f := Filter{Page: page.Normalize()}
	if !v.IsAdmin {
		f.UserID = v.UserID
	}
	return s.orders.List(ctx, f)
}

// Get returns an order visible to the viewer. Orders of other users are
// reported as not found.
func (s *Service) Get(ctx context.Context, v Viewer, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin && o.UserID != v.UserID {
		return nil, ErrNotFound
	}
	return o, nil
}

// UpdateStatus moves an order along its lifecycle. Setting the current
// status again returns the order unchanged.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}
	if !current.Status.CanTransition(to) {
		return nil, &TransitionError{From: current.Status, To: to}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, to, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	s.publish(ctx, updated, EventStatusChanged)
	return updated, nil
}

// invalidate drops cached products after a commit. It runs detached from
// the request deadline, which may already be spent.
func (s *Service) invalidate(ctx context.Context, ids []string) {
	if s.invalidator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()
	if err := s.invalidator.Invalidate(ctx, ids...); err != nil {
		zctx.From(ctx).Warn("Invalidate catalog cache", zap.Error(err), zap.Strings("product_ids", ids))
	}
}

// publish queues an event for the background sender. Events are sent in
// queue order; a full queue drops the event.
func (s *Service) publish(ctx context.Context, o *Order, t EventType) {
	if s.publisher == nil {
		return
	}
	e := Event{
		Type:        t,
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		PromoCode:   o.PromoCode,
		OccurredAt:  s.now(),
	}
	select {
	case s.events <- queuedEvent{ctx: context.WithoutCancel(ctx), event: e}:
	default:
		zctx.From(ctx).Warn("Order event queue full, dropping event",
			zap.String("order_id", o.ID),
			zap.String("type", string(t)),
		)
	}
}

func (s *Service) sendEvents() {
	defer close(s.sent)
	for q := range s.events {
		ctx, cancel := context.WithTimeout(q.ctx, s.sideEffectTimeout)
		if err := s.publisher.Publish(ctx, q.event); err != nil {
			zctx.From(ctx).Warn("Publish order event",
				zap.Error(err),
				zap.String("order_id", q.event.OrderID),
				zap.String("type", string(q.event.Type)),
			)
		}
		cancel()
	}
}

// Close flushes queued events and stops the sender. Call it after the last
// PlaceOrder or UpdateStatus.
func (s *Service) Close() {
	if s.events == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.events)
		<-s.sent
	})
}
