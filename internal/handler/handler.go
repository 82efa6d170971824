// Package handler exposes the domain services over a minimal JSON HTTP
// surface. Authentication is terminated upstream; the gateway injects the
// caller's identity as the X-User-ID header.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/gse-shop/orderflow/internal/domain/cart"
	"github.com/gse-shop/orderflow/internal/domain/coupon"
	"github.com/gse-shop/orderflow/internal/domain/order"
	"github.com/gse-shop/orderflow/internal/domain/payment"
	"github.com/gse-shop/orderflow/internal/domain/product"
)

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	cartRepo cart.Repository
	coupons  coupon.Registry
	orders   *order.Service
	payments *payment.Service
	lg       *zap.Logger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	cartRepo cart.Repository,
	coupons coupon.Registry,
	orders *order.Service,
	payments *payment.Service,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		cartRepo: cartRepo,
		coupons:  coupons,
		orders:   orders,
		payments: payments,
		lg:       lg.Named("handler"),
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PUT /api/cart/items/{itemID}", h.updateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{itemID}", h.removeCartItem)

	mux.HandleFunc("GET /api/coupons/{code}", h.getCoupon)

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.cancelOrder)
	mux.HandleFunc("DELETE /api/orders/{id}/items/{itemID}", h.removeOrderItem)
	mux.HandleFunc("POST /api/orders/{id}/coupon", h.applyCoupon)
	mux.HandleFunc("DELETE /api/orders/{id}/coupon", h.discardCoupon)

	mux.HandleFunc("POST /api/orders/{id}/payment", h.initiatePayment)
	mux.HandleFunc("GET /api/orders/{id}/payment/callback", h.paymentCallback)

	return mux
}
