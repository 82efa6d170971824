package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

type cartItemResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	items, err := h.cartRepo.ItemsByOwner(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	ps, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	byID := make(map[int64]product.Product, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
	}

	resp := cartResponse{
		Items: make([]cartItemResponse, len(items)),
		Total: cart.TotalPrice(items, byID),
	}
	for i, it := range items {
		resp.Items[i] = cartItemResponse{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	item, err := h.carts.AddItem(r.Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cartItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	})
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	itemID, err := strconv.ParseInt(r.PathValue("itemID"), 10, 64)
	if err != nil {
		h.badRequest(w, "invalid item id")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	if err := h.carts.UpdateItem(r.Context(), uid, itemID, req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	itemID, err := strconv.ParseInt(r.PathValue("itemID"), 10, 64)
	if err != nil {
		h.badRequest(w, "invalid item id")
		return
	}

	if err := h.carts.RemoveItem(r.Context(), uid, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
