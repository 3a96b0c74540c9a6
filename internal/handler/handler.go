// Package handler exposes the storefront over HTTP with a chi router.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/user"
)

// Catalog is implemented by *product.Service.
type Catalog interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, int, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Categories(ctx context.Context) ([]product.Category, error)
	Create(ctx context.Context, in product.Input) (*product.Product, error)
	Update(ctx context.Context, id string, in product.Input) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

// Orders is implemented by *order.Service.
type Orders interface {
	PlaceOrder(ctx context.Context, userID string, req order.PlaceOrderRequest) (*order.Order, error)
	List(ctx context.Context, v order.Viewer, page paging.Request) ([]order.Order, int, error)
	Get(ctx context.Context, v order.Viewer, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*order.Order, error)
}

// Promos is implemented by *promo.Service.
type Promos interface {
	Quote(ctx context.Context, code string, orderAmount decimal.Decimal) (*promo.Quote, error)
	Get(ctx context.Context, id string) (*promo.PromoCode, error)
	List(ctx context.Context, f promo.Filter) ([]promo.PromoCode, int, error)
	Create(ctx context.Context, in promo.Input) (*promo.PromoCode, error)
	Update(ctx context.Context, id string, pt promo.Patch) (*promo.PromoCode, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (*promo.PromoCode, error)
}

// Accounts is implemented by *auth.Service.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// RequestTimeout bounds every API request. Zero disables the deadline.
	RequestTimeout time.Duration
	// MaxBodyBytes limits request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the /api routes.
type Handler struct {
	catalog  Catalog
	orders   Orders
	promos   Promos
	accounts Accounts

	timeout      time.Duration
	maxBodyBytes int64
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, catalog Catalog, orders Orders, promos Promos, accounts Accounts) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		catalog:      catalog,
		orders:       orders,
		promos:       promos,
		accounts:     accounts,
		timeout:      cfg.RequestTimeout,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Mount registers every API route under /api on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		if h.timeout > 0 {
			r.Use(middleware.Timeout(h.timeout))
		}
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeMessage(w, http.StatusNotFound, false, "Route not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeMessage(w, http.StatusMethodNotAllowed, false, "Method not allowed")
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.With(h.Authenticate).Get("/me", h.me)
		})

		r.Get("/categories", h.listCategories)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/category/{category}", h.listProductsByCategory)
			r.Get("/{id}", h.getProduct)
			r.Group(func(r chi.Router) {
				r.Use(h.Authenticate, RequireAdmin)
				r.Post("/", h.createProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Get("/", h.listOrders)
			r.Post("/", h.placeOrder)
			r.Get("/{id}", h.getOrder)
			r.With(RequireAdmin).Patch("/{id}/status", h.updateOrderStatus)
		})

		r.Route("/promos", func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Post("/validate", h.validatePromo)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", h.listPromos)
				r.Post("/", h.createPromo)
				r.Get("/{id}", h.getPromo)
				r.Put("/{id}", h.updatePromo)
				r.Delete("/{id}", h.deletePromo)
				r.Patch("/{id}/toggle", h.togglePromo)
			})
		})
	})
}
