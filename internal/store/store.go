// Package store declares the persistence ports shared by the Postgres and
// in-memory backends.
//
// Counters (product stock, coupon usage) are only ever changed through the
// conditional writes on Tx; there is no setter that writes them directly.
package store

import (
	"context"
	"time"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

type Reader interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListMovements(ctx context.Context, productID string, page domain.Page) ([]domain.InventoryMovement, error)
	SumMovements(ctx context.Context, productID string) (int, error)
	ListStockAlerts(ctx context.Context) ([]domain.StockAlert, error)

	GetCoupon(ctx context.Context, id string) (domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (domain.Coupon, error)
	CountCouponUsages(ctx context.Context, couponID, userID string) (int, error)
	ListCouponUsages(ctx context.Context, couponID string) ([]domain.CouponUsage, error)
	ListCoupons(ctx context.Context, page domain.Page) ([]domain.Coupon, error)

	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error)

	GetTemplate(ctx context.Context, id string) (domain.Template, error)
	GetOutboxEntry(ctx context.Context, id string) (domain.OutboxEntry, error)
	ListPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error)
}

// Tx is a unit of work. Every write made through it commits or rolls back
// together.
type Tx interface {
	Reader

	InsertProduct(ctx context.Context, p domain.Product) error
	// AdjustStock applies delta only if the result stays >= 0 and returns the
	// new count. On refusal it returns the current count and
	// domain.ErrInsufficientStock.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	InsertMovement(ctx context.Context, m domain.InventoryMovement) error
	UpsertStockAlert(ctx context.Context, a domain.StockAlert) error
	TouchStockAlert(ctx context.Context, productID string, at time.Time) error

	InsertCoupon(ctx context.Context, c domain.Coupon) error
	SetCouponStatus(ctx context.Context, id string, status domain.CouponStatus) error
	// UpdateCoupon rewrites the editable terms of a coupon. Code, status and
	// usage_count are left alone.
	UpdateCoupon(ctx context.Context, c domain.Coupon) error
	ExpireCoupons(ctx context.Context, now time.Time) (int, error)
	LockCoupon(ctx context.Context, id string) (domain.Coupon, error)
	// InsertCouponUsage reports false when (couponID, orderID) already exists.
	InsertCouponUsage(ctx context.Context, u domain.CouponUsage) (bool, error)
	// IncrementCouponUsage bumps usage_count only while it is below the limit;
	// otherwise domain.ErrUsageLimitExceeded.
	IncrementCouponUsage(ctx context.Context, couponID string) (int, error)

	InsertOrder(ctx context.Context, o domain.Order) error
	// LockOrder reads the order and holds it until the unit of work ends.
	LockOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, o domain.Order) error

	UpsertTemplate(ctx context.Context, t domain.Template) error
	InsertOutbox(ctx context.Context, e domain.OutboxEntry) error
	// ClaimOutbox takes a PENDING entry for one dispatcher until the given
	// time. It reports false when the entry is no longer PENDING or another
	// claim is still live at now.
	ClaimOutbox(ctx context.Context, id string, now, until time.Time) (bool, error)
	// UpdateOutbox writes the dispatch outcome and drops any claim.
	UpdateOutbox(ctx context.Context, e domain.OutboxEntry) error
}

type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
