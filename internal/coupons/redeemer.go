// Package coupons validates and redeems discount coupons.
//
// usage_count is only raised by a conditional increment
// (usage_count < usage_limit) inside the same unit of work that inserts the
// coupon_usages row, and (coupon_id, order_id) is unique, so a second
// redemption for the same order is a no-op.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

type Redeemer struct {
	Store   store.Store
	Retries int
	Now     func() time.Time
}

type Redemption struct {
	Usage     domain.CouponUsage
	Duplicate bool // order sudah pernah redeem kupon ini
}

func (r *Redeemer) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a code against an order subtotal for a user.
func (r *Redeemer) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (domain.Coupon, error) {
	var c domain.Coupon
	err := store.Retry(ctx, r.Retries, func() error {
		var err error
		c, err = r.validate(ctx, r.Store, code, subtotal, userID)
		return err
	})
	return c, err
}

// ValidateTx is Validate inside the caller's unit of work.
func (r *Redeemer) ValidateTx(ctx context.Context, tx store.Tx, code string, subtotal decimal.Decimal, userID string) (domain.Coupon, error) {
	return r.validate(ctx, tx, code, subtotal, userID)
}

func (r *Redeemer) validate(ctx context.Context, rd store.Reader, code string, subtotal decimal.Decimal, userID string) (domain.Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return domain.Coupon{}, fmt.Errorf("coupon code required: %w", domain.ErrBadRequest)
	}
	c, err := rd.GetCouponByCode(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	now := r.now()

	switch {
	case c.Status == domain.CouponExpired:
		return domain.Coupon{}, domain.ErrCouponExpired
	case c.Status != domain.CouponActive:
		return domain.Coupon{}, domain.ErrCouponInactive
	case !now.Before(c.ValidTo):
		return domain.Coupon{}, domain.ErrCouponExpired
	case now.Before(c.ValidFrom):
		return domain.Coupon{}, fmt.Errorf("%w: not valid before %s", domain.ErrCouponInactive, c.ValidFrom.Format(time.RFC3339))
	case !c.HasHeadroom():
		return domain.Coupon{}, domain.ErrUsageLimitExceeded
	case c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount):
		return domain.Coupon{}, fmt.Errorf("%w: requires %s", domain.ErrMinOrderNotMet, c.MinOrderAmount.StringFixed(2))
	}

	if c.PerUserLimit != nil && userID != "" {
		used, err := rd.CountCouponUsages(ctx, c.ID, userID)
		if err != nil {
			return domain.Coupon{}, err
		}
		if used >= *c.PerUserLimit {
			return domain.Coupon{}, domain.ErrPerUserLimitExceeded
		}
	}
	return c, nil
}

// Redeem records one use of a coupon by an order in its own unit of work.
func (r *Redeemer) Redeem(ctx context.Context, couponID, userID, orderID string, discount decimal.Decimal) (Redemption, error) {
	var out Redemption
	err := store.InTx(ctx, r.Store, r.Retries, func(ctx context.Context, tx store.Tx) error {
		red, err := r.RedeemTx(ctx, tx, couponID, userID, orderID, discount)
		if err != nil {
			return err
		}
		out = red
		return nil
	})
	return out, err
}

// RedeemTx joins the caller's unit of work.
func (r *Redeemer) RedeemTx(ctx context.Context, tx store.Tx, couponID, userID, orderID string, discount decimal.Decimal) (Redemption, error) {
	if couponID == "" || orderID == "" {
		return Redemption{}, fmt.Errorf("coupon id and order id required: %w", domain.ErrBadRequest)
	}
	if discount.IsNegative() {
		return Redemption{}, fmt.Errorf("discount must be >= 0: %w", domain.ErrBadRequest)
	}

	c, err := tx.LockCoupon(ctx, couponID)
	if err != nil {
		return Redemption{}, err
	}
	if c.PerUserLimit != nil && userID != "" {
		used, err := tx.CountCouponUsages(ctx, couponID, userID)
		if err != nil {
			return Redemption{}, err
		}
		if used >= *c.PerUserLimit {
			seen, err := r.alreadyRedeemed(ctx, tx, couponID, orderID)
			if err != nil {
				return Redemption{}, err
			}
			if !seen {
				return Redemption{}, domain.ErrPerUserLimitExceeded
			}
		}
	}

	u := domain.CouponUsage{
		ID:             uuid.NewString(),
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
		UsedAt:         r.now(),
	}
	inserted, err := tx.InsertCouponUsage(ctx, u)
	if err != nil {
		return Redemption{}, err
	}
	if !inserted {
		log.Printf("[coupons] coupon=%s order=%s already redeemed, skipping", couponID, orderID)
		return Redemption{Usage: u, Duplicate: true}, nil
	}

	count, err := tx.IncrementCouponUsage(ctx, couponID)
	if errors.Is(err, domain.ErrUsageLimitExceeded) {
		return Redemption{}, domain.ErrUsageLimitExceeded
	}
	if err != nil {
		return Redemption{}, err
	}
	log.Printf("[coupons] redeemed coupon=%s order=%s user=%s usage=%d", c.Code, orderID, userID, count)
	return Redemption{Usage: u}, nil
}

func (r *Redeemer) alreadyRedeemed(ctx context.Context, tx store.Tx, couponID, orderID string) (bool, error) {
	usages, err := tx.ListCouponUsages(ctx, couponID)
	if err != nil {
		return false, fmt.Errorf("list usages for %s: %w", couponID, err)
	}
	for _, u := range usages {
		if u.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}
