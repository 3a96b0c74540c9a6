package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/validation"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := product.Filter{Search: q.Get("search"), Page: pageRequest(r)}
	if raw := q.Get("category"); raw != "" {
		c, err := product.ParseCategory(raw)
		if err != nil {
			writeError(w, r, validation.New(err.Error()), "Failed to fetch products")
			return
		}
		f.Category = c
	}
	featured, err := boolParam(r, "featured")
	if err != nil {
		writeError(w, r, err, "Failed to fetch products")
		return
	}
	f.Featured = featured
	h.writeProducts(w, r, f)
}

func (h *Handler) listProductsByCategory(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		raw = chi.URLParam(r, "category")
	}
	c, err := product.ParseCategory(raw)
	if err != nil {
		writeError(w, r, validation.New(err.Error()), "Failed to fetch products")
		return
	}
	h.writeProducts(w, r, product.Filter{Category: c, Page: pageRequest(r)})
}

func (h *Handler) writeProducts(w http.ResponseWriter, r *http.Request, f product.Filter) {
	if f.Page.Limit == 0 {
		f.Page.Limit = product.DefaultPageSize
	}
	items, total, err := h.catalog.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err, "Failed to fetch products")
		return
	}
	writePage(w, toProducts(items), paging.NewInfo(f.Page, total))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to fetch product")
		return
	}
	writeData(w, http.StatusOK, toProduct(p))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to fetch categories")
		return
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to create product")
		return
	}
	p, err := h.catalog.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err, "Failed to create product")
		return
	}
	writeData(w, http.StatusCreated, toProduct(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to update product")
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err, "Failed to update product")
		return
	}
	writeData(w, http.StatusOK, toProduct(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "Failed to delete product")
		return
	}
	writeMessage(w, http.StatusOK, true, "Product deleted successfully")
}
