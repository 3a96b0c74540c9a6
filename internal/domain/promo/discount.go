package promo

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the amount this code takes off orderAmount at
// now. It is zero for invalid codes and for orders under the minimum, never
// exceeds orderAmount and is rounded to cents. The usage count is not touched.
func (p *PromoCode) CalculateDiscount(orderAmount decimal.Decimal, now time.Time) decimal.Decimal {
	if !p.IsValid(now) || orderAmount.LessThan(p.MinimumOrderAmount) || !orderAmount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		discount = orderAmount.Mul(p.DiscountValue).Div(hundred)
		if p.MaximumDiscountAmount.Valid && discount.GreaterThan(p.MaximumDiscountAmount.Decimal) {
			discount = p.MaximumDiscountAmount.Decimal
		}
	case DiscountFixed:
		discount = p.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount.Round(2), orderAmount)
}

// Quote is the outcome of checking a code against an order amount.
type Quote struct {
	PromoID        string
	Code           string
	Description    string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// quote checks p against orderAmount and prices the discount.
func (p *PromoCode) quote(orderAmount decimal.Decimal, now time.Time) (*Quote, error) {
	if !p.IsValid(now) {
		return nil, ErrUnavailable
	}
	if orderAmount.LessThan(p.MinimumOrderAmount) {
		return nil, &BelowMinimumError{Minimum: p.MinimumOrderAmount}
	}

	discount := p.CalculateDiscount(orderAmount, now)
	return &Quote{
		PromoID:        p.ID,
		Code:           p.Code,
		Description:    p.Description,
		DiscountType:   p.DiscountType,
		DiscountValue:  p.DiscountValue,
		DiscountAmount: discount,
		FinalAmount:    orderAmount.Sub(discount),
	}, nil
}
