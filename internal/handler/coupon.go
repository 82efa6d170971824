package handler

import (
	"net/http"
	"time"
)

// getCoupon lets the storefront pre-check a code before attempting to apply
// it to an order. The registry's bloom prefilter rejects unknown codes
// without touching storage.
func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(r); !ok {
		h.unauthorized(w)
		return
	}

	c, err := h.coupons.FindUsable(r.Context(), r.PathValue("code"), time.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Code            string    `json:"code"`
		DiscountPercent int       `json:"discount_percent"`
		ExpirationDate  time.Time `json:"expiration_date"`
	}{
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
		ExpirationDate:  c.ExpirationDate,
	})
}
