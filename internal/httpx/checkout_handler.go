package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/storefront-core/internal/checkout"
)

type CheckoutHandler struct {
	Checkout *checkout.Service
}

type checkoutResp struct {
	Order      orderView `json:"order"`
	Idempotent bool      `json:"idempotent"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.placeOrder)
}

func (h *CheckoutHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if !decode(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		req.ExternalID = r.Header.Get("Idempotency-Key")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusCreated
	if res.Existed {
		code = http.StatusOK
	}
	writeJSON(w, code, checkoutResp{Order: toOrderView(res.Order), Idempotent: res.Existed})
}
