package memstore

import (
	"context"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getProduct(id)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listProducts(), nil
}

func (s *Store) ListMovements(_ context.Context, productID string, page domain.Page) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listMovements(productID, page), nil
}

func (s *Store) SumMovements(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sumMovements(productID), nil
}

func (s *Store) ListStockAlerts(_ context.Context) ([]domain.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listStockAlerts(), nil
}

func (s *Store) GetCoupon(_ context.Context, id string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getCoupon(id)
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getCouponByCode(code)
}

func (s *Store) CountCouponUsages(_ context.Context, couponID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.countCouponUsages(couponID, userID), nil
}

func (s *Store) ListCouponUsages(_ context.Context, couponID string) ([]domain.CouponUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCouponUsages(couponID), nil
}

func (s *Store) ListCoupons(_ context.Context, page domain.Page) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCoupons(page), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getOrder(id)
}

func (s *Store) GetOrderByExternalID(_ context.Context, externalID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getOrderByExternalID(externalID)
}

func (s *Store) ListOrders(_ context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listOrders(status, page), nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getTemplate(id)
}

func (s *Store) GetOutboxEntry(_ context.Context, id string) (domain.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getOutboxEntry(id)
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]domain.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listPendingOutbox(limit), nil
}
