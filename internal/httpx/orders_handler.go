package httpx

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/redisx"
)

// StatusCache is the redis read path for order status.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error
}

type OrdersHandler struct {
	Workflow *orders.Workflow
	Cache    StatusCache // optional
}

type transitionReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Cached  bool   `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/admin/orders/{id}/status", h.transition)
	r.Post("/admin/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := domain.OrderStatus(strings.ToUpper(r.URL.Query().Get("status")))
	list, err := h.Workflow.List(ctx, status, pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Workflow.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		if cs, ok, err := h.Cache.GetStatus(ctx, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: string(cs.Status), Cached: true})
			return
		} else if err != nil {
			log.Printf("[http] status cache read %s: %v", orderID, err)
		}
	}

	// 2) fallback DB
	o, err := h.Workflow.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.SetStatus(ctx, orderID, o.Status, o.UpdatedAt)
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: string(o.Status)})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	o, err := h.Workflow.Transition(ctx, chi.URLParam(r, "id"), target, req.Notes, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Workflow.Cancel(ctx, chi.URLParam(r, "id"), req.Reason, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
