package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/order"
	"github.com/gse-shop/orderflow/internal/domain/payment"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			h.lg.Warn("encode response", zap.Error(err))
		}
	}
}

// writeError maps a domain error onto an HTTP status and JSON body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErr *cart.FieldError
	if errors.As(err, &fieldErr) {
		h.writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    http.StatusBadRequest,
			Message: fieldErr.Message,
			Field:   fieldErr.Field,
		})
		return
	}

	var stockErr *order.InsufficientStockError
	if errors.As(err, &stockErr) {
		h.writeJSON(w, http.StatusConflict, errorBody{
			Code:    http.StatusConflict,
			Message: stockErr.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		status = http.StatusNotFound

	case errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, order.ErrDiscountOverflow):
		status = http.StatusBadRequest

	case errors.Is(err, order.ErrNotPending),
		errors.Is(err, order.ErrCouponAlreadyApplied),
		errors.Is(err, order.ErrNoCouponApplied),
		errors.Is(err, order.ErrCouponMismatch),
		errors.Is(err, payment.ErrRejected):
		status = http.StatusConflict

	case errors.Is(err, order.ErrContention):
		// Transient lock contention: the client should retry shortly.
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable

	case errors.Is(err, payment.ErrVerificationFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.lg.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.writeJSON(w, status, errorBody{Code: status, Message: "internal error"})
		return
	}
	h.writeJSON(w, status, errorBody{Code: status, Message: err.Error()})
}

// userID extracts the caller's identity injected by the upstream gateway.
func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, errorBody{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusUnauthorized, errorBody{
		Code:    http.StatusUnauthorized,
		Message: "missing or invalid X-User-ID",
	})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
