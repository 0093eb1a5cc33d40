package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

// tx works on a private copy of the state; the write lock is held by WithTx.
type tx struct {
	s  *Store
	st *state
}

var _ store.Tx = (*tx)(nil)

func (t *tx) GetProduct(_ context.Context, id string) (domain.Product, error) {
	return t.st.getProduct(id)
}

func (t *tx) ListProducts(_ context.Context) ([]domain.Product, error) {
	return t.st.listProducts(), nil
}

func (t *tx) ListMovements(_ context.Context, productID string, page domain.Page) ([]domain.InventoryMovement, error) {
	return t.st.listMovements(productID, page), nil
}

func (t *tx) SumMovements(_ context.Context, productID string) (int, error) {
	return t.st.sumMovements(productID), nil
}

func (t *tx) ListStockAlerts(_ context.Context) ([]domain.StockAlert, error) {
	return t.st.listStockAlerts(), nil
}

func (t *tx) GetCoupon(_ context.Context, id string) (domain.Coupon, error) {
	return t.st.getCoupon(id)
}

func (t *tx) GetCouponByCode(_ context.Context, code string) (domain.Coupon, error) {
	return t.st.getCouponByCode(code)
}

func (t *tx) CountCouponUsages(_ context.Context, couponID, userID string) (int, error) {
	return t.st.countCouponUsages(couponID, userID), nil
}

func (t *tx) ListCouponUsages(_ context.Context, couponID string) ([]domain.CouponUsage, error) {
	if err := t.s.fault("ListCouponUsages"); err != nil {
		return nil, err
	}
	return t.st.listCouponUsages(couponID), nil
}

func (t *tx) ListCoupons(_ context.Context, page domain.Page) ([]domain.Coupon, error) {
	return t.st.listCoupons(page), nil
}

func (t *tx) GetOrder(_ context.Context, id string) (domain.Order, error) {
	return t.st.getOrder(id)
}

func (t *tx) GetOrderByExternalID(_ context.Context, externalID string) (domain.Order, error) {
	return t.st.getOrderByExternalID(externalID)
}

func (t *tx) ListOrders(_ context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error) {
	return t.st.listOrders(status, page), nil
}

func (t *tx) GetTemplate(_ context.Context, id string) (domain.Template, error) {
	return t.st.getTemplate(id)
}

func (t *tx) GetOutboxEntry(_ context.Context, id string) (domain.OutboxEntry, error) {
	return t.st.getOutboxEntry(id)
}

func (t *tx) ListPendingOutbox(_ context.Context, limit int) ([]domain.OutboxEntry, error) {
	return t.st.listPendingOutbox(limit), nil
}

// ---- writes ----

func (t *tx) InsertProduct(_ context.Context, p domain.Product) error {
	if err := t.s.fault("InsertProduct"); err != nil {
		return err
	}
	if _, ok := t.st.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists: %w", p.ID, domain.ErrBadRequest)
	}
	p.InStock = p.StockCount > 0
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) AdjustStock(_ context.Context, productID string, delta int) (int, error) {
	if err := t.s.fault("AdjustStock"); err != nil {
		return 0, err
	}
	p, err := t.st.getProduct(productID)
	if err != nil {
		return 0, err
	}
	if p.StockCount+delta < 0 {
		return p.StockCount, domain.ErrInsufficientStock
	}
	p.StockCount += delta
	p.InStock = p.StockCount > 0
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return p.StockCount, nil
}

func (t *tx) InsertMovement(_ context.Context, m domain.InventoryMovement) error {
	if err := t.s.fault("InsertMovement"); err != nil {
		return err
	}
	t.st.movements = append(t.st.movements, m)
	return nil
}

func (t *tx) UpsertStockAlert(_ context.Context, a domain.StockAlert) error {
	if err := t.s.fault("UpsertStockAlert"); err != nil {
		return err
	}
	if _, err := t.st.getProduct(a.ProductID); err != nil {
		return err
	}
	if prev, ok := t.st.alerts[a.ProductID]; ok {
		a.CreatedAt = prev.CreatedAt
		a.LastAlertedAt = prev.LastAlertedAt
	}
	t.st.alerts[a.ProductID] = a
	return nil
}

func (t *tx) TouchStockAlert(_ context.Context, productID string, at time.Time) error {
	a, ok := t.st.alerts[productID]
	if !ok {
		return notFound("stock alert", productID)
	}
	a.LastAlertedAt = &at
	t.st.alerts[productID] = a
	return nil
}

func (t *tx) InsertCoupon(_ context.Context, c domain.Coupon) error {
	if err := t.s.fault("InsertCoupon"); err != nil {
		return err
	}
	for _, other := range t.st.coupons {
		if strings.EqualFold(other.Code, c.Code) {
			return fmt.Errorf("%s: %w", c.Code, domain.ErrDuplicateCoupon)
		}
	}
	t.st.coupons[c.ID] = c
	return nil
}

func (t *tx) SetCouponStatus(_ context.Context, id string, status domain.CouponStatus) error {
	c, err := t.st.getCoupon(id)
	if err != nil {
		return err
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	t.st.coupons[id] = c
	return nil
}

func (t *tx) UpdateCoupon(_ context.Context, c domain.Coupon) error {
	if err := t.s.fault("UpdateCoupon"); err != nil {
		return err
	}
	cur, err := t.st.getCoupon(c.ID)
	if err != nil {
		return err
	}
	cur.Type = c.Type
	cur.Value = c.Value
	cur.MinOrderAmount = c.MinOrderAmount
	cur.MaxDiscountAmount = c.MaxDiscountAmount
	cur.UsageLimit = c.UsageLimit
	cur.PerUserLimit = c.PerUserLimit
	cur.ValidFrom = c.ValidFrom
	cur.ValidTo = c.ValidTo
	cur.UpdatedAt = c.UpdatedAt
	t.st.coupons[c.ID] = cur
	return nil
}

func (t *tx) ExpireCoupons(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, c := range t.st.coupons {
		if c.Status == domain.CouponActive && !now.Before(c.ValidTo) {
			c.Status = domain.CouponExpired
			c.UpdatedAt = now
			t.st.coupons[id] = c
			n++
		}
	}
	return n, nil
}

func (t *tx) LockCoupon(_ context.Context, id string) (domain.Coupon, error) {
	if err := t.s.fault("LockCoupon"); err != nil {
		return domain.Coupon{}, err
	}
	return t.st.getCoupon(id)
}

func (t *tx) InsertCouponUsage(_ context.Context, u domain.CouponUsage) (bool, error) {
	if err := t.s.fault("InsertCouponUsage"); err != nil {
		return false, err
	}
	for _, x := range t.st.usages {
		if x.CouponID == u.CouponID && x.OrderID == u.OrderID {
			return false, nil
		}
	}
	t.st.usages = append(t.st.usages, u)
	return true, nil
}

func (t *tx) IncrementCouponUsage(_ context.Context, couponID string) (int, error) {
	if err := t.s.fault("IncrementCouponUsage"); err != nil {
		return 0, err
	}
	c, err := t.st.getCoupon(couponID)
	if err != nil {
		return 0, err
	}
	if !c.HasHeadroom() {
		return c.UsageCount, domain.ErrUsageLimitExceeded
	}
	c.UsageCount++
	c.UpdatedAt = time.Now().UTC()
	t.st.coupons[couponID] = c
	return c.UsageCount, nil
}

func (t *tx) InsertOrder(_ context.Context, o domain.Order) error {
	if err := t.s.fault("InsertOrder"); err != nil {
		return err
	}
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", o.ID, domain.ErrBadRequest)
	}
	if o.ExternalID != "" {
		if _, err := t.st.getOrderByExternalID(o.ExternalID); err == nil {
			return fmt.Errorf("order external_id %s already exists: %w", o.ExternalID, domain.ErrBadRequest)
		}
	}
	t.st.orders[o.ID] = copyOrder(o)
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (domain.Order, error) {
	if err := t.s.fault("LockOrder"); err != nil {
		return domain.Order{}, err
	}
	return t.st.getOrder(id)
}

func (t *tx) UpdateOrderStatus(_ context.Context, o domain.Order) error {
	if err := t.s.fault("UpdateOrderStatus"); err != nil {
		return err
	}
	cur, err := t.st.getOrder(o.ID)
	if err != nil {
		return err
	}
	cur.Status = o.Status
	cur.Notes = o.Notes
	cur.DeliveredDate = o.DeliveredDate
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *tx) UpsertTemplate(_ context.Context, tpl domain.Template) error {
	t.st.templates[tpl.ID] = tpl
	return nil
}

func (t *tx) InsertOutbox(_ context.Context, e domain.OutboxEntry) error {
	if err := t.s.fault("InsertOutbox"); err != nil {
		return err
	}
	t.st.outbox[e.ID] = copyEntry(e)
	t.st.outboxSeq = append(t.st.outboxSeq, e.ID)
	return nil
}

func (t *tx) UpdateOutbox(_ context.Context, e domain.OutboxEntry) error {
	if err := t.s.fault("UpdateOutbox"); err != nil {
		return err
	}
	if _, ok := t.st.outbox[e.ID]; !ok {
		return notFound("outbox entry", e.ID)
	}
	e.ClaimedUntil = nil
	t.st.outbox[e.ID] = copyEntry(e)
	return nil
}

func (t *tx) ClaimOutbox(_ context.Context, id string, now, until time.Time) (bool, error) {
	if err := t.s.fault("ClaimOutbox"); err != nil {
		return false, err
	}
	e, ok := t.st.outbox[id]
	if !ok {
		return false, notFound("outbox entry", id)
	}
	if e.Status != domain.OutboxPending {
		return false, nil
	}
	if e.ClaimedUntil != nil && e.ClaimedUntil.After(now) {
		return false, nil
	}
	u := until
	e.ClaimedUntil = &u
	t.st.outbox[id] = e
	return true, nil
}
