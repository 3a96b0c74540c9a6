package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/promo"
)

// validatePromo quotes a code against an order amount without redeeming it.
func (h *Handler) validatePromo(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to validate promo code")
		return
	}
	q, err := h.promos.Quote(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		writeError(w, r, err, "Failed to validate promo code")
		return
	}
	writeData(w, http.StatusOK, toQuote(q))
}

// writePromoError reports a missing code by id as "not found" rather than
// the checkout wording.
func writePromoError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, promo.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, false, "Promo code not found")
		return
	}
	writeError(w, r, err, fallback)
}

func (h *Handler) listPromos(w http.ResponseWriter, r *http.Request) {
	active, err := boolParam(r, "active")
	if err != nil {
		writeError(w, r, err, "Failed to fetch promo codes")
		return
	}
	f := promo.Filter{Active: active, Page: pageRequest(r)}
	items, total, err := h.promos.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err, "Failed to fetch promo codes")
		return
	}
	writePage(w, toPromos(items), paging.NewInfo(f.Page, total))
}

func (h *Handler) getPromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.promos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writePromoError(w, r, err, "Failed to fetch promo code")
		return
	}
	writeData(w, http.StatusOK, toPromo(p))
}

func (h *Handler) createPromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to create promo code")
		return
	}
	p, err := h.promos.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err, "Failed to create promo code")
		return
	}
	writeData(w, http.StatusCreated, toPromo(p))
}

func (h *Handler) updatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoPatchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to update promo code")
		return
	}
	p, err := h.promos.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		writePromoError(w, r, err, "Failed to update promo code")
		return
	}
	writeData(w, http.StatusOK, toPromo(p))
}

func (h *Handler) deletePromo(w http.ResponseWriter, r *http.Request) {
	if err := h.promos.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writePromoError(w, r, err, "Failed to delete promo code")
		return
	}
	writeMessage(w, http.StatusOK, true, "Promo code deleted successfully")
}

func (h *Handler) togglePromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.promos.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writePromoError(w, r, err, "Failed to toggle promo code")
		return
	}
	writeData(w, http.StatusOK, toPromo(p))
}
