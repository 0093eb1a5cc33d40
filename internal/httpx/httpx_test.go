package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-core/internal/audit"
	"github.com/ariefcatur/storefront-core/internal/checkout"
	"github.com/ariefcatur/storefront-core/internal/coupons"
	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/inventory"
	"github.com/ariefcatur/storefront-core/internal/memstore"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/outbox"
	"github.com/ariefcatur/storefront-core/internal/redisx"
)

type app struct {
	srv   *httptest.Server
	st    *memstore.Store
	audit *memAudit
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func newApp(t *testing.T) app {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, outbox.SeedTemplates(ctx, st))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := &redisx.StatusCache{RDB: rdb}

	ledger := &inventory.Ledger{Store: st}
	ob := &outbox.Outbox{Store: st}
	redeemer := &coupons.Redeemer{Store: st}
	admin := &coupons.Admin{Store: st}
	fee := decimal.NewFromInt(50)
	sink := &memAudit{}

	r := NewRouter()
	(&CheckoutHandler{Checkout: &checkout.Service{
		Store: st, Ledger: ledger, Coupons: redeemer, Outbox: ob,
		Idem: &redisx.Idempotency{RDB: rdb}, ShippingFee: fee, Source: "test",
	}}).Register(r)
	(&OrdersHandler{Workflow: &orders.Workflow{Store: st, Ledger: ledger, Outbox: ob, Source: "test"}, Cache: cache}).Register(r)
	(&InventoryHandler{Ledger: ledger, LowStockThreshold: 10, Audit: sink}).Register(r)
	(&CouponsHandler{Redeemer: redeemer, Admin: admin, ShippingFee: fee, Audit: sink}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return app{srv: srv, st: st, audit: sink}
}

func (a app) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "admin-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a app) product(t *testing.T, id, price string, stock int) {
	t.Helper()
	code := a.do(t, http.MethodPost, "/admin/products", map[string]any{"id": id, "name": id, "price": price, "stock_count": stock}, nil)
	require.Equal(t, http.StatusCreated, code)
}

func (a app) checkout(t *testing.T, ext string, items []map[string]any, coupon string) (int, checkoutResp) {
	t.Helper()
	var out checkoutResp
	code := a.do(t, http.MethodPost, "/checkout", map[string]any{
		"external_id": ext, "user_id": "u1", "email": "u1@example.com", "items": items, "coupon_code": coupon,
	}, &out)
	return code, out
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	resp, err := http.Get(a.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckout_CreatesThenReplays(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "100.00", 5)

	items := []map[string]any{{"product_id": "p1", "quantity": 2}}
	code, first := a.checkout(t, "ext-1", items, "")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "PENDING", first.Order.Status)
	assert.Equal(t, "200.00", first.Order.Subtotal)
	assert.Equal(t, "250.00", first.Order.Total)
	assert.False(t, first.Idempotent)

	code, again := a.checkout(t, "ext-1", items, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, again.Idempotent)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	p, err := a.st.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockCount)
}

func TestCheckout_InsufficientStockPointsAtLine(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "10", 5)
	a.product(t, "p2", "10", 1)

	var out errorResp
	code := a.do(t, http.MethodPost, "/checkout", map[string]any{
		"user_id": "u1", "email": "u1@example.com",
		"items": []map[string]any{{"product_id": "p1", "quantity": 1}, {"product_id": "p2", "quantity": 3}},
	}, &out)
	require.Equal(t, http.StatusConflict, code)
	require.NotNil(t, out.ItemIndex)
	assert.Equal(t, 1, *out.ItemIndex)
	assert.Equal(t, "p2", out.ProductID)
}

func TestCheckout_BadJSON(t *testing.T) {
	a := newApp(t)
	resp, err := http.Post(a.srv.URL+"/checkout", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrders_TransitionAndCancel(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "10", 5)
	_, placed := a.checkout(t, "", []map[string]any{{"product_id": "p1", "quantity": 2}}, "")
	id := placed.Order.ID

	var o orderView
	code := a.do(t, http.MethodPost, "/admin/orders/"+id+"/status", map[string]any{"status": "shipped"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = a.do(t, http.MethodPost, "/admin/orders/"+id+"/status", map[string]any{"status": "confirmed", "notes": "paid"}, &o)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CONFIRMED", o.Status)
	assert.Contains(t, o.Notes, "paid")

	code = a.do(t, http.MethodPost, "/admin/orders/"+id+"/cancel", map[string]any{"reason": "customer request"}, &o)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", o.Status)

	p, err := a.st.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockCount)

	code = a.do(t, http.MethodPost, "/admin/orders/"+id+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = a.do(t, http.MethodPost, "/admin/orders/nope/status", map[string]any{"status": "CONFIRMED"}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOrders_StatusReadsThroughCache(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "10", 5)
	_, placed := a.checkout(t, "", []map[string]any{{"product_id": "p1", "quantity": 1}}, "")

	var s statusResp
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/orders/"+placed.Order.ID+"/status", nil, &s))
	assert.Equal(t, "PENDING", s.Status)
	assert.False(t, s.Cached)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/orders/"+placed.Order.ID+"/status", nil, &s))
	assert.True(t, s.Cached)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/orders/missing/status", nil, nil))
}

func TestOrders_ListFiltersStatus(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "10", 10)
	for i := 0; i < 3; i++ {
		a.checkout(t, fmt.Sprintf("ext-%d", i), []map[string]any{{"product_id": "p1", "quantity": 1}}, "")
	}

	var list []orderView
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/orders?status=pending&limit=2", nil, &list))
	assert.Len(t, list, 2)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/orders?status=LOST", nil, nil))
}

func TestInventory_AdjustMovementsAndLowStock(t *testing.T) {
	a := newApp(t)
	a.product(t, "p1", "10", 3)
	a.product(t, "p2", "10", 50)

	var adj adjustResp
	code := a.do(t, http.MethodPost, "/admin/products/p1/adjust", map[string]any{"delta": -1, "reason": "damage", "notes": "dropped"}, &adj)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, adj.StockCount)

	code = a.do(t, http.MethodPost, "/admin/products/p1/adjust", map[string]any{"delta": -5, "reason": "THEFT"}, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = a.do(t, http.MethodPost, "/admin/products/p1/adjust", map[string]any{"delta": 1, "reason": "GIFT"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var ms []movementView
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/products/p1/movements", nil, &ms))
	require.Len(t, ms, 1)
	assert.Equal(t, "DAMAGE", ms[0].Reason)
	assert.Equal(t, "admin-1", ms[0].ActorID)

	var low []productView
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/inventory/low-stock", nil, &low))
	require.Len(t, low, 1)
	assert.Equal(t, "p1", low[0].ID)

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/admin/products/p2/alert", map[string]any{"threshold": 60}, nil))
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/inventory/low-stock?alerts=true", nil, &low))
	require.Len(t, low, 1)
	assert.Equal(t, "p2", low[0].ID)

	var rec reconcileResp
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/products/p1/reconcile", nil, &rec))
	assert.True(t, rec.Consistent)
	assert.Equal(t, -1, rec.MovementSum)
	assert.Equal(t, []string{audit.ActionStockAdjusted}, a.audit.actions())
}

func TestCoupons_Lifecycle(t *testing.T) {
	a := newApp(t)
	now := time.Now().UTC()
	body := map[string]any{
		"code": "save10", "type": "percentage", "value": "10",
		"valid_from": now.Add(-time.Hour), "valid_to": now.Add(24 * time.Hour),
	}

	var c couponView
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/admin/coupons", body, &c))
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/admin/coupons", body, nil))

	var v validateResp
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/coupons/validate", map[string]any{"code": "Save10", "subtotal": "200"}, &v))
	assert.Equal(t, "20.00", v.Discount)

	var e errorResp
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/coupons/validate", map[string]any{"code": "NOPE", "subtotal": "1"}, &e))
	assert.Equal(t, "NOPE", e.CouponCode)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/coupons/"+c.ID+"/deactivate", nil, &c))
	assert.Equal(t, "INACTIVE", c.Status)
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(t, http.MethodPost, "/coupons/validate", map[string]any{"code": "SAVE10", "subtotal": "200"}, nil))

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/coupons/"+c.ID+"/activate", nil, &c))
	assert.Equal(t, "ACTIVE", c.Status)

	var ex expireResp
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/coupons/expire", nil, &ex))
	assert.Zero(t, ex.Expired)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/admin/coupons/"+c.ID, map[string]any{"value": "15", "usage_limit": 3}, &c))
	assert.Equal(t, "15.00", c.Value)
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 3, *c.UsageLimit)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/admin/coupons/"+c.ID, map[string]any{"valid_to": now.Add(-48 * time.Hour)}, nil))
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPut, "/admin/coupons/missing", map[string]any{"value": "1"}, nil))

	var list []couponView
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/coupons", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "SAVE10", list[0].Code)

	assert.Equal(t, []string{audit.ActionCouponCreated, audit.ActionCouponStatus, audit.ActionCouponStatus, audit.ActionCouponUpdated}, a.audit.actions())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Transient(errors.New("lock timeout")), http.StatusServiceUnavailable},
		{fmt.Errorf("order x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrIllegalTransition, http.StatusConflict},
		{fmt.Errorf("%w: %w", domain.ErrBadRequest, domain.ErrTerminalState), http.StatusConflict},
		{&domain.LineItemError{Err: &domain.StockError{}}, http.StatusConflict},
		{&domain.CouponError{Code: "X", Err: domain.ErrMinOrderNotMet}, http.StatusUnprocessableEntity},
		{domain.ErrPerUserLimitExceeded, http.StatusUnprocessableEntity},
		{domain.ErrUnsupportedCouponType, http.StatusUnprocessableEntity},
		{domain.ErrBadRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
