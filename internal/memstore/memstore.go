// Package memstore is an in-memory store.Store. A unit of work runs on a
// private copy of the data under the write lock and is swapped in on
// success, so writes are serialized and a failed unit leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

type Store struct {
	mu sync.RWMutex
	st *state

	faultMu sync.Mutex
	faults  map[string][]error
}

var _ store.Store = (*Store)(nil)

type state struct {
	products  map[string]domain.Product
	movements []domain.InventoryMovement
	alerts    map[string]domain.StockAlert
	coupons   map[string]domain.Coupon
	usages    []domain.CouponUsage
	orders    map[string]domain.Order
	templates map[string]domain.Template
	outbox    map[string]domain.OutboxEntry
	outboxSeq []string
}

func New() *Store {
	return &Store{
		st: &state{
			products:  map[string]domain.Product{},
			alerts:    map[string]domain.StockAlert{},
			coupons:   map[string]domain.Coupon{},
			orders:    map[string]domain.Order{},
			templates: map[string]domain.Template{},
			outbox:    map[string]domain.OutboxEntry{},
		},
		faults: map[string][]error{},
	}
}

// FailNext makes the next call of the named Tx operation (e.g. "AdjustStock")
// return err. Calls queue up.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	s.faults[op] = q[1:]
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s, st: s.st.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

func (st *state) clone() *state {
	c := &state{
		products:  make(map[string]domain.Product, len(st.products)),
		movements: append([]domain.InventoryMovement(nil), st.movements...),
		alerts:    make(map[string]domain.StockAlert, len(st.alerts)),
		coupons:   make(map[string]domain.Coupon, len(st.coupons)),
		usages:    append([]domain.CouponUsage(nil), st.usages...),
		orders:    make(map[string]domain.Order, len(st.orders)),
		templates: make(map[string]domain.Template, len(st.templates)),
		outbox:    make(map[string]domain.OutboxEntry, len(st.outbox)),
		outboxSeq: append([]string(nil), st.outboxSeq...),
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.alerts {
		c.alerts[k] = v
	}
	for k, v := range st.coupons {
		c.coupons[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.templates {
		c.templates[k] = v
	}
	for k, v := range st.outbox {
		c.outbox[k] = copyEntry(v)
	}
	return c
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.DeliveredDate != nil {
		d := *o.DeliveredDate
		o.DeliveredDate = &d
	}
	return o
}

func copyEntry(e domain.OutboxEntry) domain.OutboxEntry {
	e.Payload = append([]byte(nil), e.Payload...)
	if e.SentAt != nil {
		t := *e.SentAt
		e.SentAt = &t
	}
	if e.ClaimedUntil != nil {
		t := *e.ClaimedUntil
		e.ClaimedUntil = &t
	}
	return e
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// ---- reads (shared by Store and tx) ----

func (st *state) getProduct(id string) (domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return domain.Product{}, notFound("product", id)
	}
	return p, nil
}

func (st *state) listProducts() []domain.Product {
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) listMovements(productID string, page domain.Page) []domain.InventoryMovement {
	page = page.Normalize()
	var out []domain.InventoryMovement
	skipped := 0
	for i := len(st.movements) - 1; i >= 0 && len(out) < page.Limit; i-- {
		m := st.movements[i]
		if m.ProductID != productID {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, m)
	}
	return out
}

func (st *state) sumMovements(productID string) int {
	sum := 0
	for _, m := range st.movements {
		if m.ProductID == productID {
			sum += m.Delta
		}
	}
	return sum
}

func (st *state) listStockAlerts() []domain.StockAlert {
	out := make([]domain.StockAlert, 0, len(st.alerts))
	for _, a := range st.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (st *state) getCoupon(id string) (domain.Coupon, error) {
	c, ok := st.coupons[id]
	if !ok {
		return domain.Coupon{}, notFound("coupon", id)
	}
	return c, nil
}

func (st *state) getCouponByCode(code string) (domain.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range st.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return domain.Coupon{}, notFound("coupon", code)
}

func (st *state) countCouponUsages(couponID, userID string) int {
	n := 0
	for _, u := range st.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n
}

func (st *state) listCouponUsages(couponID string) []domain.CouponUsage {
	var out []domain.CouponUsage
	for _, u := range st.usages {
		if u.CouponID == couponID {
			out = append(out, u)
		}
	}
	return out
}

func (st *state) getOrder(id string) (domain.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return domain.Order{}, notFound("order", id)
	}
	return copyOrder(o), nil
}

func (st *state) getOrderByExternalID(ext string) (domain.Order, error) {
	for _, o := range st.orders {
		if ext != "" && o.ExternalID == ext {
			return copyOrder(o), nil
		}
	}
	return domain.Order{}, notFound("order external_id", ext)
}

func (st *state) listCoupons(page domain.Page) []domain.Coupon {
	page = page.Normalize()
	all := make([]domain.Coupon, 0, len(st.coupons))
	for _, c := range st.coupons {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Code < all[j].Code
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}

func (st *state) listOrders(status domain.OrderStatus, page domain.Page) []domain.Order {
	page = page.Normalize()
	all := make([]domain.Order, 0, len(st.orders))
	for _, o := range st.orders {
		if status != "" && o.Status != status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].OrderDate.Equal(all[j].OrderDate) {
			return all[i].ID > all[j].ID
		}
		return all[i].OrderDate.After(all[j].OrderDate)
	})
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]domain.Order, 0, end-page.Offset)
	for _, o := range all[page.Offset:end] {
		out = append(out, copyOrder(o))
	}
	return out
}

func (st *state) getTemplate(id string) (domain.Template, error) {
	t, ok := st.templates[id]
	if !ok {
		return domain.Template{}, fmt.Errorf("%s: %w", id, domain.ErrTemplateNotFound)
	}
	return t, nil
}

func (st *state) getOutboxEntry(id string) (domain.OutboxEntry, error) {
	e, ok := st.outbox[id]
	if !ok {
		return domain.OutboxEntry{}, notFound("outbox entry", id)
	}
	return copyEntry(e), nil
}

func (st *state) listPendingOutbox(limit int) []domain.OutboxEntry {
	var out []domain.OutboxEntry
	for _, id := range st.outboxSeq {
		e := st.outbox[id]
		if e.Status != domain.OutboxPending {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
