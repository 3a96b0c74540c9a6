package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
)

func viewer(r *http.Request) order.Viewer {
	u := UserFromContext(r.Context())
	return order.Viewer{UserID: u.ID, IsAdmin: u.IsAdmin}
}

// placeOrder prices the cart server side, commits it and returns the
// stored order.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to create order")
		return
	}
	o, err := h.orders.PlaceOrder(r.Context(), UserFromContext(r.Context()).ID, req.domain())
	if err != nil {
		writeError(w, r, err, "Failed to create order")
		return
	}
	writeData(w, http.StatusCreated, toOrder(o))
}

// listOrders returns the caller's orders, or every order for an admin.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page := pageRequest(r)
	items, total, err := h.orders.List(r.Context(), viewer(r), page)
	if err != nil {
		writeError(w, r, err, "Failed to fetch orders")
		return
	}
	writePage(w, toOrders(items), paging.NewInfo(page, total))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to fetch order")
		return
	}
	writeData(w, http.StatusOK, toOrder(o))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to update order status")
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err, "Failed to update order status")
		return
	}
	writeData(w, http.StatusOK, toOrder(o))
}
