package promo

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
	byID map[string]*PromoCode
}

func newFakeRepo(codes ...*PromoCode) *fakeRepo {
	r := &fakeRepo{byID: map[string]*PromoCode{}}
	for _, p := range codes {
		r.byID[p.ID] = p
	}
	return r
}

func (r *fakeRepo) FindActiveByCode(_ context.Context, code string) (*PromoCode, error) {
	for _, p := range r.byID {
		if p.Code == code && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*PromoCode, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) List(context.Context, Filter) ([]PromoCode, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Create(_ context.Context, p *PromoCode) error {
	for _, existing := range r.byID {
		if existing.Code == p.Code {
			return ErrDuplicateCode
		}
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, id string, pt Patch, at time.Time) (*PromoCode, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if pt.UsageLimit != nil && *pt.UsageLimit < p.UsedCount {
		return nil, ErrLimitBelowUsage
	}
	pt.merge(p).apply(p)
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

func (r *fakeRepo) Toggle(_ context.Context, id string) (*PromoCode, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.IsActive = !p.IsActive
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) Redeem(_ context.Context, id string) (*PromoCode, error) {
	p, ok := r.byID[id]
	if !ok || !p.IsActive || (p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit) {
		return nil, ErrRedemptionConflict
	}
	p.UsedCount++
	cp := *p
	return &cp, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return svc
}

func TestService_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed code over minimum", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) { p.MinimumOrderAmount = dec("200") })
		svc := newTestService(t, newFakeRepo(p))

		q, err := svc.Quote(ctx, " save ", dec("300"))
		require.NoError(t, err)
		assert.Equal(t, "SAVE", q.Code)
		assert.True(t, dec("50").Equal(q.DiscountAmount))
		assert.True(t, dec("250").Equal(q.FinalAmount))
	})

	t.Run("below minimum", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) { p.MinimumOrderAmount = dec("200") })
		svc := newTestService(t, newFakeRepo(p))

		_, err := svc.Quote(ctx, "SAVE", dec("150"))
		var bmErr *BelowMinimumError
		require.ErrorAs(t, err, &bmErr)
		assert.True(t, dec("200").Equal(bmErr.Minimum))
		assert.Equal(t, "minimum order amount of 200.00 required", err.Error())
	})

	t.Run("percentage capped", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) {
			p.DiscountType = DiscountPercentage
			p.DiscountValue = dec("20")
			p.MaximumDiscountAmount.Decimal = dec("100")
			p.MaximumDiscountAmount.Valid = true
		})
		svc := newTestService(t, newFakeRepo(p))

		q, err := svc.Quote(ctx, "SAVE", dec("1000"))
		require.NoError(t, err)
		assert.True(t, dec("100").Equal(q.DiscountAmount))
		assert.True(t, dec("900").Equal(q.FinalAmount))
	})

	t.Run("expired", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) {
			p.ValidFrom = testNow.Add(-48 * time.Hour)
			p.ValidUntil = testNow.Add(-24 * time.Hour)
		})
		svc := newTestService(t, newFakeRepo(p))

		_, err := svc.Quote(ctx, "SAVE", dec("300"))
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("exhausted", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) { p.UsageLimit = intPtr(1); p.UsedCount = 1 })
		svc := newTestService(t, newFakeRepo(p))

		_, err := svc.Quote(ctx, "SAVE", dec("300"))
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("inactive is not found", func(t *testing.T) {
		p := activePromo(func(p *PromoCode) { p.IsActive = false })
		svc := newTestService(t, newFakeRepo(p))

		_, err := svc.Quote(ctx, "SAVE", dec("300"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		svc := newTestService(t, newFakeRepo())

		_, err := svc.Quote(ctx, "SAVE", dec("0"))
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
	})

	t.Run("quote does not redeem", func(t *testing.T) {
		p := activePromo(nil)
		repo := newFakeRepo(p)
		svc := newTestService(t, repo)

		_, err := svc.Quote(ctx, "SAVE", dec("300"))
		require.NoError(t, err)
		assert.Zero(t, repo.byID[p.ID].UsedCount)
	})
}

func TestService_Redeem(t *testing.T) {
	ctx := context.Background()
	p := activePromo(func(p *PromoCode) { p.UsageLimit = intPtr(1) })
	repo := newFakeRepo(p)
	svc := newTestService(t, repo)

	got, err := svc.Redeem(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)

	_, err = svc.Redeem(ctx, p.ID)
	require.ErrorIs(t, err, ErrRedemptionConflict)
	assert.Equal(t, 1, repo.byID[p.ID].UsedCount)
}

func validInput() Input {
	return Input{
		Code:          " summer25 ",
		Description:   "Summer sale",
		DiscountType:  DiscountPercentage,
		DiscountValue: dec("25"),
		ValidFrom:     testNow,
		ValidUntil:    testNow.Add(30 * 24 * time.Hour),
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, "SUMMER25", p.Code)
	assert.True(t, p.IsActive)
	assert.Zero(t, p.UsedCount)

	_, err = svc.Create(ctx, validInput())
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		detail string
	}{
		{
			name:   "missing code",
			mutate: func(in *Input) { in.Code = "  " },
			detail: "code is required",
		},
		{
			name:   "unknown type",
			mutate: func(in *Input) { in.DiscountType = "bogo" },
			detail: "discountType must be one of percentage, fixed",
		},
		{
			name:   "zero value",
			mutate: func(in *Input) { in.DiscountValue = dec("0") },
			detail: "discountValue must be positive",
		},
		{
			name:   "percentage above 100",
			mutate: func(in *Input) { in.DiscountValue = dec("100.01") },
			detail: "discountValue must not exceed 100 for percentage codes",
		},
		{
			name:   "window reversed",
			mutate: func(in *Input) { in.ValidUntil = in.ValidFrom.Add(-time.Hour) },
			detail: "validUntil must be after validFrom",
		},
		{
			name:   "zero usage limit",
			mutate: func(in *Input) { in.UsageLimit = intPtr(0) },
			detail: "usageLimit must be a positive integer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newFakeRepo())
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Details, tt.detail)
		})
	}
}

func TestService_CreateLargeFixedDiscount(t *testing.T) {
	in := validInput()
	in.DiscountType = DiscountFixed
	in.DiscountValue = dec("500")

	p, err := newTestService(t, newFakeRepo()).Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(p.DiscountValue))
}

func TestService_UpdateKeepsUsage(t *testing.T) {
	ctx := context.Background()
	p := activePromo(func(p *PromoCode) { p.UsedCount = 4 })
	repo := newFakeRepo(p)
	svc := newTestService(t, repo)

	_, err := svc.Update(ctx, p.ID, Patch{UsageLimit: intPtr(3)})
	require.ErrorIs(t, err, ErrLimitBelowUsage)

	got, err := svc.Update(ctx, p.ID, Patch{Code: ptr(" summer25 "), UsageLimit: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 4, got.UsedCount)
	assert.Equal(t, 10, *got.UsageLimit)
	assert.Equal(t, "SUMMER25", repo.byID[p.ID].Code)
}

func TestService_UpdateKeepsOmittedFields(t *testing.T) {
	ctx := context.Background()
	p := activePromo(func(p *PromoCode) {
		p.Description = "Weekend offer"
		p.DiscountType = DiscountPercentage
		p.DiscountValue = dec("10")
		p.MinimumOrderAmount = dec("200")
		p.MaximumDiscountAmount = decimal.NewNullDecimal(dec("100"))
		p.UsageLimit = intPtr(50)
		p.IsActive = false
	})
	repo := newFakeRepo(p)
	svc := newTestService(t, repo)

	got, err := svc.Update(ctx, p.ID, Patch{DiscountValue: ptr(dec("15"))})
	require.NoError(t, err)

	assert.False(t, got.IsActive)
	assert.True(t, dec("15").Equal(got.DiscountValue))
	assert.Equal(t, "Weekend offer", got.Description)
	assert.True(t, dec("200").Equal(got.MinimumOrderAmount))
	require.True(t, got.MaximumDiscountAmount.Valid)
	assert.True(t, dec("100").Equal(got.MaximumDiscountAmount.Decimal))
	require.NotNil(t, got.UsageLimit)
	assert.Equal(t, 50, *got.UsageLimit)

	got, err = svc.Update(ctx, p.ID, Patch{ClearMaximumDiscount: true, ClearUsageLimit: true, IsActive: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.False(t, got.MaximumDiscountAmount.Valid)
	assert.Nil(t, got.UsageLimit)
}

func TestService_UpdateValidatesMergedCode(t *testing.T) {
	ctx := context.Background()
	p := activePromo(nil)
	svc := newTestService(t, newFakeRepo(p))

	_, err := svc.Update(ctx, p.ID, Patch{ValidUntil: ptr(p.ValidFrom.Add(-time.Hour))})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Details, "validUntil must be after validFrom")

	_, err = svc.Update(ctx, p.ID, Patch{DiscountType: ptr(DiscountPercentage), DiscountValue: ptr(dec("120"))})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, "missing", Patch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func ptr[T any](v T) *T { return &v }

func TestService_Toggle(t *testing.T) {
	p := activePromo(nil)
	svc := newTestService(t, newFakeRepo(p))

	got, err := svc.Toggle(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Toggle(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
