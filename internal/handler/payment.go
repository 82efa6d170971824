package handler

import (
	"net/http"

	"github.com/google/uuid"
)

// initiatePayment opens a gateway transaction for the order's current total
// and returns the redirect URL.
func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
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
		CallbackURL string `json:"callback_url"`
	}
	if err := decode(r, &req); err != nil || req.CallbackURL == "" {
		h.badRequest(w, "callback_url is required")
		return
	}

	// Visibility check: only the owner (or staff) may pay for an order.
	if _, err := h.orders.Get(r.Context(), orderID, uid); err != nil {
		h.writeError(w, r, err)
		return
	}

	payURL, err := h.payments.Initiate(r.Context(), orderID, req.CallbackURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"pay_url": payURL})
}

// paymentCallback is where the gateway redirects the buyer after the charge
// attempt. Query parameters follow the gateway's convention: Authority is the
// transaction handle, Status is "OK" on an approved charge.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "invalid order id")
		return
	}
	authority := r.URL.Query().Get("Authority")
	if authority == "" {
		h.badRequest(w, "Authority is required")
		return
	}
	ok := r.URL.Query().Get("Status") == "OK"

	if err := h.payments.HandleCallback(r.Context(), orderID, authority, ok); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}
