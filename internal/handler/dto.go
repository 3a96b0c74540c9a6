package handler

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/user"
)

// Identifiers are rendered as "_id" so existing storefront clients keep
// working. Money is rendered as a JSON number.

type userResponse struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUser(u *user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type productResponse struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Image       string    `json:"image,omitempty"`
	Category    string    `json:"category,omitempty"`
	Stock       int       `json:"stock"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProduct(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Image:       p.Image,
		Category:    string(p.Category),
		Stock:       p.Stock,
		Featured:    p.Featured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProducts(ps []product.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i := range ps {
		out[i] = toProduct(&ps[i])
	}
	return out
}

type productRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	Featured    *bool            `json:"featured"`
}

func (r productRequest) input() product.Input {
	in := product.Input{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Image:       r.Image,
		Stock:       r.Stock,
		Featured:    r.Featured,
	}
	if r.Category != nil {
		c := product.Category(*r.Category)
		in.Category = &c
	}
	return in
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type customerResponse struct {
	ID       string `json:"_id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
}

type orderResponse struct {
	ID              string              `json:"_id"`
	UserID          string              `json:"userId"`
	Customer        *customerResponse   `json:"customer,omitempty"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        float64             `json:"subtotal"`
	Discount        float64             `json:"discount"`
	PromoCode       string              `json:"promoCode,omitempty"`
	TotalAmount     float64             `json:"totalAmount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shippingAddress,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrder(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		Subtotal:        o.Subtotal.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		PromoCode:       o.PromoCode,
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Customer != nil {
		resp.Customer = &customerResponse{ID: o.UserID, Email: o.Customer.Email, FullName: o.Customer.FullName}
	}
	return resp
}

func toOrders(os []order.Order) []orderResponse {
	out := make([]orderResponse, len(os))
	for i := range os {
		out[i] = toOrder(&os[i])
	}
	return out
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// placeOrderRequest accepts the cart as the storefront sends it. Item prices
// are ignored; the server prices from the catalog.
type placeOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount"`
	ShippingAddress string             `json:"shippingAddress"`
	PromoCode       string             `json:"promoCode"`
}

func (r placeOrderRequest) domain() order.PlaceOrderRequest {
	items := make([]order.ItemRequest, len(r.Items))
	for i, it := range r.Items {
		items[i] = order.ItemRequest{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
	}
	return order.PlaceOrderRequest{
		Items:           items,
		TotalAmount:     r.TotalAmount,
		ShippingAddress: r.ShippingAddress,
		PromoCode:       r.PromoCode,
	}
}

type promoResponse struct {
	ID                    string    `json:"_id"`
	Code                  string    `json:"code"`
	Description           string    `json:"description,omitempty"`
	DiscountType          string    `json:"discountType"`
	DiscountValue         float64   `json:"discountValue"`
	MinimumOrderAmount    float64   `json:"minimumOrderAmount"`
	MaximumDiscountAmount *float64  `json:"maximumDiscountAmount,omitempty"`
	UsageLimit            *int      `json:"usageLimit,omitempty"`
	UsedCount             int       `json:"usedCount"`
	IsActive              bool      `json:"isActive"`
	ValidFrom             time.Time `json:"validFrom"`
	ValidUntil            time.Time `json:"validUntil"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

func toPromo(p *promo.PromoCode) promoResponse {
	resp := promoResponse{
		ID:                 p.ID,
		Code:               p.Code,
		Description:        p.Description,
		DiscountType:       string(p.DiscountType),
		DiscountValue:      p.DiscountValue.InexactFloat64(),
		MinimumOrderAmount: p.MinimumOrderAmount.InexactFloat64(),
		UsageLimit:         p.UsageLimit,
		UsedCount:          p.UsedCount,
		IsActive:           p.IsActive,
		ValidFrom:          p.ValidFrom,
		ValidUntil:         p.ValidUntil,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.MaximumDiscountAmount.Valid {
		v := p.MaximumDiscountAmount.Decimal.InexactFloat64()
		resp.MaximumDiscountAmount = &v
	}
	return resp
}

func toPromos(ps []promo.PromoCode) []promoResponse {
	out := make([]promoResponse, len(ps))
	for i := range ps {
		out[i] = toPromo(&ps[i])
	}
	return out
}

type promoRequest struct {
	Code                  string           `json:"code"`
	Description           string           `json:"description"`
	DiscountType          string           `json:"discountType"`
	DiscountValue         decimal.Decimal  `json:"discountValue"`
	MinimumOrderAmount    decimal.Decimal  `json:"minimumOrderAmount"`
	MaximumDiscountAmount *decimal.Decimal `json:"maximumDiscountAmount"`
	UsageLimit            *int             `json:"usageLimit"`
	IsActive              *bool            `json:"isActive"`
	ValidFrom             flexTime         `json:"validFrom"`
	ValidUntil            flexTime         `json:"validUntil"`
}

func (r promoRequest) input() promo.Input {
	return promo.Input{
		Code:                  r.Code,
		Description:           r.Description,
		DiscountType:          promo.DiscountType(r.DiscountType),
		DiscountValue:         r.DiscountValue,
		MinimumOrderAmount:    r.MinimumOrderAmount,
		MaximumDiscountAmount: r.MaximumDiscountAmount,
		UsageLimit:            r.UsageLimit,
		IsActive:              r.IsActive,
		ValidFrom:             time.Time(r.ValidFrom),
		ValidUntil:            time.Time(r.ValidUntil),
	}
}

// promoPatchRequest is the body of a promo update. Omitted fields keep their
// stored value; an explicit null removes the optional caps.
type promoPatchRequest struct {
	Code                  *string                   `json:"code"`
	Description           *string                   `json:"description"`
	DiscountType          *string                   `json:"discountType"`
	DiscountValue         *decimal.Decimal          `json:"discountValue"`
	MinimumOrderAmount    *decimal.Decimal          `json:"minimumOrderAmount"`
	MaximumDiscountAmount nullable[decimal.Decimal] `json:"maximumDiscountAmount"`
	UsageLimit            nullable[int]             `json:"usageLimit"`
	IsActive              *bool                     `json:"isActive"`
	ValidFrom             *flexTime                 `json:"validFrom"`
	ValidUntil            *flexTime                 `json:"validUntil"`
}

func (r promoPatchRequest) patch() promo.Patch {
	pt := promo.Patch{
		Code:                  r.Code,
		Description:           r.Description,
		DiscountValue:         r.DiscountValue,
		MinimumOrderAmount:    r.MinimumOrderAmount,
		MaximumDiscountAmount: r.MaximumDiscountAmount.Value,
		ClearMaximumDiscount:  r.MaximumDiscountAmount.Set && r.MaximumDiscountAmount.Value == nil,
		UsageLimit:            r.UsageLimit.Value,
		ClearUsageLimit:       r.UsageLimit.Set && r.UsageLimit.Value == nil,
		IsActive:              r.IsActive,
	}
	if r.DiscountType != nil {
		t := promo.DiscountType(*r.DiscountType)
		pt.DiscountType = &t
	}
	if r.ValidFrom != nil {
		v := time.Time(*r.ValidFrom)
		pt.ValidFrom = &v
	}
	if r.ValidUntil != nil {
		v := time.Time(*r.ValidUntil)
		pt.ValidUntil = &v
	}
	return pt
}

// nullable tells an omitted field (Set is false) from an explicit null
// (Set is true, Value is nil).
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

type quoteRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"orderAmount"`
}

type quoteResponse struct {
	Code           string  `json:"code"`
	Description    string  `json:"description,omitempty"`
	DiscountType   string  `json:"discountType"`
	DiscountValue  float64 `json:"discountValue"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalAmount    float64 `json:"finalAmount"`
}

func toQuote(q *promo.Quote) quoteResponse {
	return quoteResponse{
		Code:           q.Code,
		Description:    q.Description,
		DiscountType:   string(q.DiscountType),
		DiscountValue:  q.DiscountValue.InexactFloat64(),
		DiscountAmount: q.DiscountAmount.InexactFloat64(),
		FinalAmount:    q.FinalAmount.InexactFloat64(),
	}
}

// flexTime accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date, which
// the admin UI sends from date inputs.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = flexTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "time must be a string")
	}
	if s == "" {
		*t = flexTime{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", time.DateOnly} {
		if v, err := time.Parse(layout, s); err == nil {
			*t = flexTime(v)
			return nil
		}
	}
	return errors.Errorf("unrecognised time %q", s)
}
