package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/audit"
	"github.com/ariefcatur/storefront-core/internal/coupons"
	"github.com/ariefcatur/storefront-core/internal/domain"
)

type CouponsHandler struct {
	Redeemer    *coupons.Redeemer
	Admin       *coupons.Admin
	ShippingFee decimal.Decimal
	Audit       audit.Sink // optional
}

type validateReq struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	UserID   string          `json:"user_id"`
}

type validateResp struct {
	Coupon   couponView `json:"coupon"`
	Discount string     `json:"discount"`
}

type createCouponReq struct {
	Code              string           `json:"code"`
	Type              string           `json:"type"`
	Value             decimal.Decimal  `json:"value"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	UsageLimit        *int             `json:"usage_limit"`
	PerUserLimit      *int             `json:"per_user_limit"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidTo           time.Time        `json:"valid_to"`
}

type updateCouponReq struct {
	Type              *string          `json:"type"`
	Value             *decimal.Decimal `json:"value"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	UsageLimit        *int             `json:"usage_limit"`
	PerUserLimit      *int             `json:"per_user_limit"`
	ValidFrom         *time.Time       `json:"valid_from"`
	ValidTo           *time.Time       `json:"valid_to"`
}

type expireResp struct {
	Expired int `json:"expired"`
}

func (h *CouponsHandler) Register(r chi.Router) {
	r.Post("/coupons/validate", h.validate)
	r.Get("/admin/coupons", h.list)
	r.Post("/admin/coupons", h.create)
	r.Post("/admin/coupons/expire", h.expire)
	r.Get("/admin/coupons/{id}", h.get)
	r.Put("/admin/coupons/{id}", h.update)
	r.Post("/admin/coupons/{id}/activate", h.setStatus(h.Admin.Activate))
	r.Post("/admin/coupons/{id}/deactivate", h.setStatus(h.Admin.Deactivate))
}

func (h *CouponsHandler) validate(w http.ResponseWriter, r *http.Request) {
	var req validateReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Redeemer.Validate(ctx, req.Code, req.Subtotal, req.UserID)
	if err != nil {
		writeError(w, &domain.CouponError{Code: coupons.NormalizeCode(req.Code), Err: err})
		return
	}
	d, err := coupons.Discount(c, req.Subtotal, h.ShippingFee)
	if err != nil {
		writeError(w, &domain.CouponError{Code: c.Code, Err: err})
		return
	}
	writeJSON(w, http.StatusOK, validateResp{Coupon: toCouponView(c), Discount: d.StringFixed(2)})
}

func (h *CouponsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCouponReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Admin.Create(ctx, coupons.CreateInput{
		Code:              req.Code,
		Type:              domain.CouponType(strings.ToUpper(req.Type)),
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		PerUserLimit:      req.PerUserLimit,
		ValidFrom:         req.ValidFrom,
		ValidTo:           req.ValidTo,
		CreatedBy:         actorID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(ctx, r, c, audit.ActionCouponCreated)
	writeJSON(w, http.StatusCreated, toCouponView(c))
}

func (h *CouponsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Admin.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponView(c))
}

func (h *CouponsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Admin.List(ctx, pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]couponView, 0, len(list))
	for _, c := range list {
		out = append(out, toCouponView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CouponsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateCouponReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	in := coupons.UpdateInput{
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		PerUserLimit:      req.PerUserLimit,
		ValidFrom:         req.ValidFrom,
		ValidTo:           req.ValidTo,
	}
	if req.Type != nil {
		t := domain.CouponType(strings.ToUpper(*req.Type))
		in.Type = &t
	}
	c, err := h.Admin.Update(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(ctx, r, c, audit.ActionCouponUpdated)
	writeJSON(w, http.StatusOK, toCouponView(c))
}

func (h *CouponsHandler) setStatus(fn func(ctx context.Context, id string) (domain.Coupon, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		c, err := fn(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		h.record(ctx, r, c, audit.ActionCouponStatus)
		writeJSON(w, http.StatusOK, toCouponView(c))
	}
}

func (h *CouponsHandler) expire(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Admin.ExpireStale(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expireResp{Expired: n})
}

func (h *CouponsHandler) record(ctx context.Context, r *http.Request, c domain.Coupon, action string) {
	audit.Record(ctx, h.Audit, audit.Entry{
		ActorID:  actorID(r),
		Entity:   "coupon",
		EntityID: c.ID,
		Action:   action,
		Metadata: map[string]string{"code": c.Code, "status": string(c.Status)},
	})
}
