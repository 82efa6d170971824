package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/order"
)

type orderItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Status          order.Status        `json:"status"`
	DiscountPercent int                 `json:"discount_percent"`
	CouponCode      *string             `json:"coupon_code,omitempty"`
	Items           []orderItemResponse `json:"items,omitempty"`
	Total           *decimal.Decimal    `json:"total,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func toOrderResponse(v *order.View) orderResponse {
	resp := orderResponse{
		ID:              v.Order.ID,
		Status:          v.Order.Status,
		DiscountPercent: v.Order.DiscountPercent,
		CouponCode:      v.Order.CouponCode,
		Items:           make([]orderItemResponse, len(v.Items)),
		Total:           &v.Total,
		CreatedAt:       v.Order.CreatedAt,
	}
	for i, it := range v.Items {
		p := v.Products[it.ProductID]
		resp.Items[i] = orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Title:     p.Title,
			Quantity:  it.Quantity,
			Total:     order.ItemTotal(it, p),
		}
	}
	return resp
}

// createOrder converts the submitted cart lines into a pending order. The
// submitted lines must exactly match the stored cart.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req struct {
		Items []struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		} `json:"items"`
	}
	if err := decode(r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	lines := make([]cart.Line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = cart.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.CreateOrder(r.Context(), uid, lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.Get(r.Context(), o.ID, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(view))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	os, err := h.orders.ListByOwner(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]orderResponse, len(os))
	for i, o := range os {
		out[i] = orderResponse{
			ID:              o.ID,
			Status:          o.Status,
			DiscountPercent: o.DiscountPercent,
			CouponCode:      o.CouponCode,
			CreatedAt:       o.CreatedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}

	view, err := h.orders.Get(r.Context(), orderID, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(view))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}

	if err := h.orders.Cancel(r.Context(), orderID, uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeOrderItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}
	itemID, err := strconv.ParseInt(r.PathValue("itemID"), 10, 64)
	if err != nil {
		h.badRequest(w, "invalid item id")
		return
	}

	if err := h.orders.RemoveItem(r.Context(), orderID, itemID, uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// applyCoupon and discardCoupon check order visibility through Get before
// mutating, so one user cannot drive coupon state on another user's order.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil || req.Code == "" {
		h.badRequest(w, "coupon code is required")
		return
	}

	if _, err := h.orders.Get(r.Context(), orderID, uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.orders.ApplyCoupon(r.Context(), orderID, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.Get(r.Context(), orderID, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(view))
}

func (h *Handler) discardCoupon(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil || req.Code == "" {
		h.badRequest(w, "coupon code is required")
		return
	}

	if _, err := h.orders.Get(r.Context(), orderID, uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.orders.DiscardCoupon(r.Context(), orderID, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orders.Get(r.Context(), orderID, uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(view))
}
