package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-core/internal/coupons"
	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/inventory"
	"github.com/ariefcatur/storefront-core/internal/memstore"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/outbox"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int { return &n }

type recPub struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recPub) Publish(_ context.Context, _, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, value)
	return nil
}

type memIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdem) Lookup(_ context.Context, ext string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[ext]
	return id, ok, nil
}

func (m *memIdem) Remember(_ context.Context, ext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[ext] = id
	return nil
}

type fixture struct {
	svc   *Service
	st    *memstore.Store
	admin *coupons.Admin
	pub   *recPub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New()
	require.NoError(t, outbox.SeedTemplates(context.Background(), st))
	ledger := &inventory.Ledger{Store: st, Now: clock}
	for _, p := range []domain.Product{
		{ID: "p1", Name: "Kaos", Price: dec("100"), StockCount: 5},
		{ID: "p2", Name: "Topi", Price: dec("250"), StockCount: 1},
	} {
		_, err := ledger.CreateProduct(context.Background(), p)
		require.NoError(t, err)
	}
	pub := &recPub{}
	return fixture{
		st:    st,
		admin: &coupons.Admin{Store: st, Now: clock},
		pub:   pub,
		svc: &Service{
			Store:       st,
			Ledger:      ledger,
			Coupons:     &coupons.Redeemer{Store: st, Now: clock},
			Outbox:      &outbox.Outbox{Store: st, Now: clock},
			Events:      pub,
			ShippingFee: dec("50"),
			Source:      "test",
			Now:         clock,
		},
	}
}

func (f fixture) coupon(t *testing.T, in coupons.CreateInput) domain.Coupon {
	t.Helper()
	in.ValidFrom = fixedNow.Add(-time.Hour)
	if in.ValidTo.IsZero() {
		in.ValidTo = fixedNow.Add(time.Hour)
	}
	c, err := f.admin.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func (f fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.st.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockCount
}

func baseRequest() Request {
	return Request{
		UserID: "u1",
		Email:  "buyer@example.com",
		Items:  []Item{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	}
}

var orderNumberRe = regexp.MustCompile(`^ORD-20260301-[0-9A-F]{8}$`)

func TestPlaceOrder_WithPercentageCoupon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.coupon(t, coupons.CreateInput{Code: "save10", Type: domain.CouponPercentage, Value: dec("10"), MaxDiscountAmount: decPtr("50"), UsageLimit: intPtr(10)})

	req := baseRequest()
	req.CouponCode = "SAVE10"
	res, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	o := res.Order

	assert.False(t, res.Existed)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Regexp(t, orderNumberRe, o.OrderNumber)
	assert.True(t, o.Subtotal.Equal(dec("450")))
	assert.True(t, o.Discount.Equal(dec("45")))
	assert.True(t, o.Shipping.Equal(dec("50")))
	assert.True(t, o.Total.Equal(dec("455")), o.Total.String())
	assert.Equal(t, "SAVE10", o.CouponCode)

	assert.Equal(t, 3, f.stock(t, "p1"))
	assert.Equal(t, 0, f.stock(t, "p2"))
	moves, _ := f.st.ListMovements(ctx, "p1", domain.Page{})
	require.Len(t, moves, 1)
	assert.Equal(t, domain.ReasonPurchase, moves[0].Reason)
	assert.Equal(t, o.ID, moves[0].ReferenceID)

	stored, err := f.st.GetCoupon(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)

	pending, _ := f.st.ListPendingOutbox(ctx, 0)
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.TemplateOrderConfirmation, pending[0].TemplateID)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "455.00", payload["total"])
	assert.Equal(t, o.OrderNumber, payload["orderNumber"])

	require.Len(t, f.pub.msgs, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(f.pub.msgs[0], &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, o.ID, env.CorrelationID)
}

func TestPlaceOrder_FreeShipping(t *testing.T) {
	f := newFixture(t)
	f.coupon(t, coupons.CreateInput{Code: "ONGKIR", Type: domain.CouponFreeShipping})

	req := baseRequest()
	req.CouponCode = "ongkir"
	res, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Order.Discount.Equal(dec("50")))
	assert.True(t, res.Order.Total.Equal(dec("450")))
}

func TestPlaceOrder_ZeroShippingFeeIsKept(t *testing.T) {
	f := newFixture(t)
	f.svc.ShippingFee = decimal.Zero

	res, err := f.svc.PlaceOrder(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.True(t, res.Order.Shipping.IsZero(), res.Order.Shipping.String())
	assert.True(t, res.Order.Total.Equal(dec("450")), res.Order.Total.String())
}

func TestPlaceOrder_InsufficientStockPointsAtLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.coupon(t, coupons.CreateInput{Code: "FLAT", Type: domain.CouponFixedAmount, Value: dec("20")})

	req := baseRequest()
	req.Items[1].Quantity = 2
	req.CouponCode = "FLAT"
	_, err := f.svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var lineErr *domain.LineItemError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 1, lineErr.Index)
	assert.Equal(t, "p2", lineErr.ProductID)
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, f.stock(t, "p1"), "first line rolled back")
	assert.Equal(t, 1, f.stock(t, "p2"))
	stored, _ := f.st.GetCoupon(ctx, c.ID)
	assert.Zero(t, stored.UsageCount)
	all, _ := f.st.ListOrders(ctx, "", domain.Page{})
	assert.Empty(t, all)
	pending, _ := f.st.ListPendingOutbox(ctx, 0)
	assert.Empty(t, pending)
}

func TestPlaceOrder_CouponFailuresPointAtCoupon(t *testing.T) {
	f := newFixture(t)
	f.coupon(t, coupons.CreateInput{Code: "BIG", Type: domain.CouponFixedAmount, Value: dec("10"), MinOrderAmount: decPtr("1000")})
	f.coupon(t, coupons.CreateInput{Code: "BOGO", Type: domain.CouponBuyXGetY, Value: dec("1")})

	cases := map[string]error{
		"BIG":     domain.ErrMinOrderNotMet,
		"BOGO":    domain.ErrUnsupportedCouponType,
		"UNKNOWN": domain.ErrNotFound,
	}
	for code, want := range cases {
		req := baseRequest()
		req.CouponCode = code
		_, err := f.svc.PlaceOrder(context.Background(), req)
		require.ErrorIs(t, err, want, code)
		var cErr *domain.CouponError
		require.ErrorAs(t, err, &cErr, code)
		assert.Equal(t, code, cErr.Code)
	}
	assert.Equal(t, 5, f.stock(t, "p1"))
}

func TestPlaceOrder_CouponLimitReachedRollsBackStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.coupon(t, coupons.CreateInput{Code: "ONCE", Type: domain.CouponFixedAmount, Value: dec("10"), UsageLimit: intPtr(1)})

	req := Request{UserID: "u1", Email: "a@example.com", Items: []Item{{ProductID: "p1", Quantity: 1}}, CouponCode: "ONCE"}
	_, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	req.UserID = "u2"
	_, err = f.svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, domain.ErrUsageLimitExceeded)
	var cErr *domain.CouponError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, 4, f.stock(t, "p1"))
}

func TestPlaceOrder_ConcurrentCouponNeverOverRedeems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.coupon(t, coupons.CreateInput{Code: "ONCE", Type: domain.CouponFixedAmount, Value: dec("10"), UsageLimit: intPtr(1)})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(ctx, Request{UserID: "u", Email: "a@example.com",
				Items: []Item{{ProductID: "p1", Quantity: 1}}, CouponCode: "ONCE"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrUsageLimitExceeded)
		}
	}
	assert.Equal(t, 1, ok)
	stored, _ := f.st.GetCoupon(ctx, c.ID)
	assert.Equal(t, 1, stored.UsageCount)
	assert.Equal(t, 4, f.stock(t, "p1"))
}

func TestPlaceOrder_ExternalIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	idem := &memIdem{keys: map[string]string{}}
	f.svc.Idem = idem

	req := baseRequest()
	req.ExternalID = "cart-77"
	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, idem.keys["cart-77"])

	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Existed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, f.stock(t, "p1"))

	// redis kosong, fallback ke kolom external_id
	f.svc.Idem = &memIdem{keys: map[string]string{}}
	third, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, third.Existed)
	assert.Equal(t, first.Order.ID, third.Order.ID)
}

func TestPlaceOrder_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cases := []Request{
		{UserID: "u1", Email: "a@example.com"},
		{Email: "a@example.com", Items: []Item{{ProductID: "p1", Quantity: 1}}},
		{UserID: "u1", Email: "a@example.com", Items: []Item{{ProductID: "p1", Quantity: 0}}},
	}
	for i, req := range cases {
		_, err := f.svc.PlaceOrder(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrBadRequest, "case %d", i)
	}

	_, err := f.svc.PlaceOrder(context.Background(), Request{UserID: "u1", Email: "a@example.com", Items: []Item{{ProductID: "ghost", Quantity: 1}}})
	require.ErrorIs(t, err, domain.ErrNotFound)
	var lineErr *domain.LineItemError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, "ghost", lineErr.ProductID)
}

func TestPlaceOrder_RetriesTransientFailureOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.st.FailNext("InsertOrder", domain.Transient(errors.New("lock timeout")))

	res, err := f.svc.PlaceOrder(ctx, baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "p1"), "stock taken once")

	moves, _ := f.st.ListMovements(ctx, "p1", domain.Page{})
	require.Len(t, moves, 1)
	assert.Equal(t, res.Order.ID, moves[0].ReferenceID)
}
