package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/domain/validation"
)

// envelope is the body of every API response.
type envelope struct {
	Success    bool         `json:"success"`
	Data       any          `json:"data,omitempty"`
	Message    string       `json:"message,omitempty"`
	Details    []string     `json:"details,omitempty"`
	Pagination *paging.Info `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, info paging.Info) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &info})
}

func writeMessage(w http.ResponseWriter, status int, success bool, msg string) {
	writeJSON(w, status, envelope{Success: success, Message: msg})
}

// sentinels maps domain sentinel errors to a status and client message.
var sentinels = []struct {
	err    error
	status int
	msg    string
}{
	{promo.ErrNotFound, http.StatusNotFound, "Invalid promo code"},
	{product.ErrNotFound, http.StatusNotFound, "Product not found"},
	{order.ErrNotFound, http.StatusNotFound, "Order not found"},
	{user.ErrNotFound, http.StatusNotFound, "User not found"},
	{promo.ErrUnavailable, http.StatusBadRequest, "Promo code has expired or reached usage limit"},
	{promo.ErrDuplicateCode, http.StatusBadRequest, "Promo code already exists"},
	{promo.ErrLimitBelowUsage, http.StatusBadRequest, "Usage limit must not be below the current usage count"},
	{order.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
	{user.ErrEmailTaken, http.StatusBadRequest, "User already exists with this email"},
	{promo.ErrRedemptionConflict, http.StatusConflict, "Promo code is no longer available, please retry"},
	{order.ErrStatusConflict, http.StatusConflict, "Order status changed concurrently, please retry"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token."},
}

// classify returns the status and message for a known domain error.
func classify(err error) (status int, msg string, ok bool) {
	var (
		notFoundErr *order.ProductNotFoundError
		stockErr    *order.InsufficientStockError
		transErr    *order.TransitionError
		minErr      *promo.BelowMinimumError
		conflictErr *order.StockConflictError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return http.StatusBadRequest, sentence(notFoundErr.Error()), true
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, sentence(stockErr.Error()), true
	case errors.As(err, &transErr):
		return http.StatusBadRequest, sentence(transErr.Error()), true
	case errors.As(err, &minErr):
		return http.StatusBadRequest, sentence(minErr.Error()), true
	case errors.As(err, &conflictErr):
		return http.StatusConflict, sentence(conflictErr.Error()), true
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status, s.msg, true
		}
	}
	return 0, "", false
}

// writeError reports err to the client. Unclassified errors are logged and
// surfaced as a 500 with the fallback message.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var valErr *validation.Error
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Validation error", Details: valErr.Details})
		return
	}
	if status, msg, ok := classify(err); ok {
		writeMessage(w, status, false, msg)
		return
	}
	zctx.From(r.Context()).Error(fallback, zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, false, fallback)
}

func sentence(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// decode reads a JSON body into dst. Unknown fields are ignored.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return validation.New("request body too large")
		case errors.Is(err, io.EOF):
			return validation.New("request body is required")
		default:
			return validation.New("malformed JSON body")
		}
	}
	return nil
}

// pageRequest parses ?page= and ?limit=. Malformed values fall back to the
// defaults.
func pageRequest(r *http.Request) paging.Request {
	q := r.URL.Query()
	page, _ := strconv.Atoi(strings.TrimSpace(q.Get("page")))
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	return paging.Request{Page: page, Limit: limit}
}

// boolParam parses an optional boolean query parameter.
func boolParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, validation.New(name + " must be true or false")
	}
	return &v, nil
}
