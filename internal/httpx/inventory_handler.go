package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/audit"
	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/inventory"
)

type InventoryHandler struct {
	Ledger            *inventory.Ledger
	LowStockThreshold int
	Audit             audit.Sink // optional
}

type createProductReq struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	StockCount int             `json:"stock_count"`
}

type adjustReq struct {
	Delta         int    `json:"delta"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Notes         string `json:"notes"`
}

type adjustResp struct {
	ProductID  string `json:"product_id"`
	StockCount int    `json:"stock_count"`
}

type alertReq struct {
	Threshold int   `json:"threshold"`
	Active    *bool `json:"active"`
}

type reconcileResp struct {
	ProductID    string `json:"product_id"`
	InitialStock int    `json:"initial_stock"`
	MovementSum  int    `json:"movement_sum"`
	StockCount   int    `json:"stock_count"`
	Consistent   bool   `json:"consistent"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/products/{id}/movements", h.movements)
	r.Post("/admin/products", h.createProduct)
	r.Post("/admin/products/{id}/adjust", h.adjust)
	r.Put("/admin/products/{id}/alert", h.setAlert)
	r.Get("/admin/products/{id}/reconcile", h.reconcile)
	r.Get("/admin/inventory/low-stock", h.lowStock)
}

func (h *InventoryHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Ledger.CreateProduct(ctx, domain.Product{ID: req.ID, Name: req.Name, Price: req.Price, StockCount: req.StockCount})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductView(p))
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	a := inventory.Adjustment{
		ProductID: chi.URLParam(r, "id"),
		Delta:     req.Delta,
		Reason:    domain.MovementReason(strings.ToUpper(req.Reason)),
		ActorID:   actorID(r),
		Notes:     req.Notes,
	}
	if req.ReferenceType != "" || req.ReferenceID != "" {
		a.Reference = &domain.Reference{Type: req.ReferenceType, ID: req.ReferenceID}
	}
	n, err := h.Ledger.Adjust(ctx, a)
	if err != nil {
		writeError(w, err)
		return
	}
	audit.Record(ctx, h.Audit, audit.Entry{
		ActorID:  a.ActorID,
		Entity:   "product",
		EntityID: a.ProductID,
		Action:   audit.ActionStockAdjusted,
		Metadata: map[string]string{"delta": strconv.Itoa(a.Delta), "reason": string(a.Reason), "stock": strconv.Itoa(n)},
	})
	writeJSON(w, http.StatusOK, adjustResp{ProductID: a.ProductID, StockCount: n})
}

func (h *InventoryHandler) movements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ms, err := h.Ledger.Movements(ctx, chi.URLParam(r, "id"), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]movementView, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMovementView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// lowStock: ?alerts=true pakai threshold per produk, selain itu ?threshold=N.
func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	var (
		ps  []domain.Product
		err error
	)
	if alerts, _ := strconv.ParseBool(q.Get("alerts")); alerts {
		ps, err = h.Ledger.LowStockAlerts(ctx)
	} else {
		threshold := h.LowStockThreshold
		if v := q.Get("threshold"); v != "" {
			if threshold, err = strconv.Atoi(v); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResp{Error: "threshold must be an integer"})
				return
			}
		}
		ps, err = h.Ledger.LowStock(ctx, threshold)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) setAlert(w http.ResponseWriter, r *http.Request) {
	var req alertReq
	if !decode(w, r, &req) {
		return
	}
	active := req.Active == nil || *req.Active
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Ledger.SetAlert(ctx, chi.URLParam(r, "id"), req.Threshold, active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ledger.Reconcile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResp{
		ProductID:    rec.ProductID,
		InitialStock: rec.InitialStock,
		MovementSum:  rec.MovementSum,
		StockCount:   rec.StockCount,
		Consistent:   rec.Consistent(),
	})
}
