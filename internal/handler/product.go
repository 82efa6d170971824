package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/gse-shop/orderflow/internal/domain/product"
)

// productResponse is the JSON shape of a catalog entry.
type productResponse struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent int             `json:"discount_percent"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	Available       bool            `json:"available"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		Title:           p.Title,
		Quantity:        p.Quantity,
		UnitPrice:       p.UnitPrice,
		DiscountPercent: p.DiscountPercent,
		FinalPrice:      p.FinalPrice(),
		Available:       p.Available,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.products.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]productResponse, len(ps))
	for i, p := range ps {
		out[i] = toProductResponse(p)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.badRequest(w, "invalid product id")
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(*p))
}
