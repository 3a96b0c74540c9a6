// Package promo models promotional discount codes: when a code may be used,
// how much it takes off an order, and how its redemptions are counted.
package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

// Sentinel errors for promo lookups and redemption.
var (
	ErrNotFound = errors.New("invalid promo code")
	// ErrUnavailable is returned for an active code outside its validity
	// window or with its usage limit reached.
	ErrUnavailable = errors.New("promo code has expired or reached usage limit")
	// ErrRedemptionConflict is returned when the conditional usage increment
	// matched no row because the code was exhausted or deactivated meanwhile.
	ErrRedemptionConflict = errors.New("promo code is no longer available, please retry")
	ErrDuplicateCode      = errors.New("promo code already exists")
	// ErrLimitBelowUsage is returned when an update would set the usage
	// limit under the number of redemptions already made.
	ErrLimitBelowUsage = errors.New("usage limit must not be below the current usage count")
)

// BelowMinimumError indicates the order amount is under the code's minimum.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required", e.Minimum.StringFixed(2))
}

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// PromoCode is a discount code an administrator can issue.
type PromoCode struct {
	ID           string
	Code         string
	Description  string
	DiscountType DiscountType
	// DiscountValue is a percent for DiscountPercentage and a currency amount
	// for DiscountFixed.
	DiscountValue      decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	// MaximumDiscountAmount caps percentage discounts when Valid.
	MaximumDiscountAmount decimal.NullDecimal
	// UsageLimit is nil for unlimited codes.
	UsageLimit *int
	UsedCount  int
	IsActive   bool
	ValidFrom  time.Time
	ValidUntil time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsValid reports whether the code may be applied at now: it must be active,
// inside its validity window (both ends inclusive) and not exhausted.
func (p *PromoCode) IsValid(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if now.Before(p.ValidFrom) || now.After(p.ValidUntil) {
		return false
	}
	return p.UsageLimit == nil || p.UsedCount < *p.UsageLimit
}

// NormalizeCode returns the canonical form codes are stored and matched in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Filter narrows an admin listing.
type Filter struct {
	Active *bool
	Page   paging.Request
}

// Repository defines persistence operations for promo codes.
type Repository interface {
	// FindActiveByCode returns the active code with the given normalised
	// code, or ErrNotFound.
	FindActiveByCode(ctx context.Context, code string) (*PromoCode, error)
	GetByID(ctx context.Context, id string) (*PromoCode, error)
	List(ctx context.Context, f Filter) ([]PromoCode, int, error)
	Create(ctx context.Context, p *PromoCode) error
	// Update writes the fields set in pt and returns the stored code. It
	// fails with ErrLimitBelowUsage when pt.UsageLimit is under the usage
	// count at write time.
	Update(ctx context.Context, id string, pt Patch, at time.Time) (*PromoCode, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (*PromoCode, error)
	// Redeem increments the usage count when the code is active and not
	// exhausted, in a single conditional statement.
	Redeem(ctx context.Context, id string) (*PromoCode, error)
}
