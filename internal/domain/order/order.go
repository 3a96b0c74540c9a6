package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Item is a line of an order. Name and Price are snapshots taken at checkout.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Customer identifies the owner of an order in listings.
type Customer struct {
	Email    string
	FullName string
}

// Order is a placed customer order.
type Order struct {
	ID     string
	UserID string
	// Customer is filled by reads that join the owning user.
	Customer        *Customer
	Items           []Item
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	PromoCode       string
	TotalAmount     decimal.Decimal
	Status          Status
	ShippingAddress string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Decrement is the stock taken from one product by an order.
type Decrement struct {
	ProductID string
	Quantity  int
}

// Placement is everything checkout writes atomically: the stock decrements,
// the optional promo redemption and the order row.
type Placement struct {
	Order *Order
	// Decrements are sorted by ProductID with one entry per product.
	Decrements []Decrement
	// PromoID is empty when no promo was applied.
	PromoID string
}

// Filter narrows an order listing.
type Filter struct {
	// UserID limits the listing to one owner; empty lists every order.
	UserID string
	Page   paging.Request
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Place commits p in one transaction. It returns *StockConflictError or
	// promo.ErrRedemptionConflict when a conditional update matches no row,
	// in which case nothing is written.
	Place(ctx context.Context, p *Placement) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateStatus moves the order from one status to another, returning
	// ErrStatusConflict if its status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Order, error)
}

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after an order change is committed.
type Event struct {
	Type        EventType
	OrderID     string
	UserID      string
	Status      Status
	TotalAmount decimal.Decimal
	PromoCode   string
	OccurredAt  time.Time
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Invalidator drops cached catalog entries whose stock changed.
type Invalidator interface {
	Invalidate(ctx context.Context, productIDs ...string) error
}
