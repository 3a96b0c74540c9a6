package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/validation"
)

// Input carries the fields of a new promo code. The usage count is never
// set through Input.
type Input struct {
	Code                  string
	Description           string
	DiscountType          DiscountType
	DiscountValue         decimal.Decimal
	MinimumOrderAmount    decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	UsageLimit            *int
	// IsActive defaults to true when nil.
	IsActive   *bool
	ValidFrom  time.Time
	ValidUntil time.Time
}

func (in Input) validate() error {
	var c validation.Collector
	c.Check(NormalizeCode(in.Code) != "", "code is required")
	c.Check(in.DiscountType.Valid(), "discountType must be one of percentage, fixed")
	c.Check(in.DiscountValue.IsPositive(), "discountValue must be positive")
	if in.DiscountType == DiscountPercentage {
		c.Check(in.DiscountValue.LessThanOrEqual(hundred), "discountValue must not exceed 100 for percentage codes")
	}
	c.Check(!in.MinimumOrderAmount.IsNegative(), "minimumOrderAmount must not be negative")
	if in.MaximumDiscountAmount != nil {
		c.Check(in.MaximumDiscountAmount.IsPositive(), "maximumDiscountAmount must be positive")
	}
	if in.UsageLimit != nil {
		c.Check(*in.UsageLimit > 0, "usageLimit must be a positive integer")
	}
	c.Check(!in.ValidFrom.IsZero(), "validFrom is required")
	c.Check(!in.ValidUntil.IsZero(), "validUntil is required")
	if !in.ValidFrom.IsZero() && !in.ValidUntil.IsZero() {
		c.Check(in.ValidUntil.After(in.ValidFrom), "validUntil must be after validFrom")
	}
	return c.Err()
}

func (in Input) apply(p *PromoCode) {
	p.Code = NormalizeCode(in.Code)
	p.Description = strings.TrimSpace(in.Description)
	p.DiscountType = in.DiscountType
	p.DiscountValue = in.DiscountValue
	p.MinimumOrderAmount = in.MinimumOrderAmount
	p.MaximumDiscountAmount = decimal.NullDecimal{}
	if in.MaximumDiscountAmount != nil {
		p.MaximumDiscountAmount = decimal.NewNullDecimal(*in.MaximumDiscountAmount)
	}
	p.UsageLimit = in.UsageLimit
	p.IsActive = in.IsActive == nil || *in.IsActive
	p.ValidFrom = in.ValidFrom
	p.ValidUntil = in.ValidUntil
}

// Patch carries the fields an update changes. Nil fields keep their stored
// value; ClearMaximumDiscount and ClearUsageLimit remove the optional caps.
type Patch struct {
	Code                  *string
	Description           *string
	DiscountType          *DiscountType
	DiscountValue         *decimal.Decimal
	MinimumOrderAmount    *decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	ClearMaximumDiscount  bool
	UsageLimit            *int
	ClearUsageLimit       bool
	IsActive              *bool
	ValidFrom             *time.Time
	ValidUntil            *time.Time
}

// normalize canonicalizes the code and trims the description.
func (pt Patch) normalize() Patch {
	if pt.Code != nil {
		code := NormalizeCode(*pt.Code)
		pt.Code = &code
	}
	if pt.Description != nil {
		desc := strings.TrimSpace(*pt.Description)
		pt.Description = &desc
	}
	if pt.ClearMaximumDiscount {
		pt.MaximumDiscountAmount = nil
	}
	if pt.ClearUsageLimit {
		pt.UsageLimit = nil
	}
	return pt
}

// merge returns the Input describing p after pt is applied.
func (pt Patch) merge(p *PromoCode) Input {
	in := Input{
		Code:               p.Code,
		Description:        p.Description,
		DiscountType:       p.DiscountType,
		DiscountValue:      p.DiscountValue,
		MinimumOrderAmount: p.MinimumOrderAmount,
		UsageLimit:         p.UsageLimit,
		IsActive:           &p.IsActive,
		ValidFrom:          p.ValidFrom,
		ValidUntil:         p.ValidUntil,
	}
	if p.MaximumDiscountAmount.Valid {
		in.MaximumDiscountAmount = &p.MaximumDiscountAmount.Decimal
	}
	if pt.Code != nil {
		in.Code = *pt.Code
	}
	if pt.Description != nil {
		in.Description = *pt.Description
	}
	if pt.DiscountType != nil {
		in.DiscountType = *pt.DiscountType
	}
	if pt.DiscountValue != nil {
		in.DiscountValue = *pt.DiscountValue
	}
	if pt.MinimumOrderAmount != nil {
		in.MinimumOrderAmount = *pt.MinimumOrderAmount
	}
	switch {
	case pt.ClearMaximumDiscount:
		in.MaximumDiscountAmount = nil
	case pt.MaximumDiscountAmount != nil:
		in.MaximumDiscountAmount = pt.MaximumDiscountAmount
	}
	switch {
	case pt.ClearUsageLimit:
		in.UsageLimit = nil
	case pt.UsageLimit != nil:
		in.UsageLimit = pt.UsageLimit
	}
	if pt.IsActive != nil {
		in.IsActive = pt.IsActive
	}
	if pt.ValidFrom != nil {
		in.ValidFrom = *pt.ValidFrom
	}
	if pt.ValidUntil != nil {
		in.ValidUntil = *pt.ValidUntil
	}
	return in
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the provider for redemption metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements promo code checks, usage accounting and administration.
type Service struct {
	repo          Repository
	now           func() time.Time
	meterProvider metric.MeterProvider

	redemptions metric.Int64Counter
}

// NewService creates a promo Service.
func NewService(repo Repository, opts ...Option) (*Service, error) {
	s := &Service{
		repo:          repo,
		now:           time.Now,
		meterProvider: noop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meterProvider.Meter("storefront/promo")
	var err error
	if s.redemptions, err = meter.Int64Counter("promo.redemptions",
		metric.WithDescription("Promo code redemptions"),
	); err != nil {
		return nil, errors.Wrap(err, "create redemptions counter")
	}
	return s, nil
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// Quote looks up an active code and prices it against orderAmount.
func (s *Service) Quote(ctx context.Context, code string, orderAmount decimal.Decimal) (*Quote, error) {
	var c validation.Collector
	c.Check(NormalizeCode(code) != "", "code is required")
	c.Check(orderAmount.IsPositive(), "orderAmount must be positive")
	if err := c.Err(); err != nil {
		return nil, err
	}

	p, err := s.repo.FindActiveByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return p.quote(orderAmount, s.now())
}

// Redeem records one use of the code.
func (s *Service) Redeem(ctx context.Context, id string) (*PromoCode, error) {
	p, err := s.repo.Redeem(ctx, id)
	if err != nil {
		return nil, err
	}
	s.RecordRedemption(ctx, p.Code)
	return p, nil
}

// RecordRedemption counts a redemption performed elsewhere, such as inside
// the checkout transaction.
func (s *Service) RecordRedemption(ctx context.Context, code string) {
	s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("promo.code", code)))
}

// Get returns a promo code by id.
func (s *Service) Get(ctx context.Context, id string) (*PromoCode, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of promo codes, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]PromoCode, int, error) {
	f.Page = f.Page.Normalize()
	return s.repo.List(ctx, f)
}

// New validates in and builds an unsaved code with a fresh id and a zero
// usage count.
func New(in Input, now time.Time) (*PromoCode, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &PromoCode{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(p)
	return p, nil
}

// Create validates in and stores a new code with a zero usage count.
func (s *Service) Create(ctx context.Context, in Input) (*PromoCode, error) {
	p, err := New(in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes the fields set in pt and keeps the rest, including the
// active flag and the usage count. The merged code is validated as a whole.
func (s *Service) Update(ctx context.Context, id string, pt Patch) (*PromoCode, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pt = pt.normalize()
	if err := pt.merge(p).validate(); err != nil {
		return nil, err
	}
	if pt.UsageLimit != nil && *pt.UsageLimit < p.UsedCount {
		return nil, ErrLimitBelowUsage
	}
	return s.repo.Update(ctx, id, pt, s.now())
}

// Delete removes a code.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Toggle flips the active flag of a code.
func (s *Service) Toggle(ctx context.Context, id string) (*PromoCode, error) {
	return s.repo.Toggle(ctx, id)
}
