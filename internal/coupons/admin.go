package coupons

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

type Admin struct {
	Store   store.Store
	Retries int
	Now     func() time.Time
}

type CreateInput struct {
	Code              string
	Type              domain.CouponType
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	PerUserLimit      *int
	ValidFrom         time.Time
	ValidTo           time.Time
	CreatedBy         string
}

func (a *Admin) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (in CreateInput) validate() error {
	switch {
	case NormalizeCode(in.Code) == "":
		return fmt.Errorf("code required: %w", domain.ErrBadRequest)
	case !in.Type.Valid():
		return fmt.Errorf("unknown coupon type %q: %w", in.Type, domain.ErrBadRequest)
	case in.Value.IsNegative():
		return fmt.Errorf("value must be >= 0: %w", domain.ErrBadRequest)
	case in.Type == domain.CouponPercentage && in.Value.GreaterThan(hundred):
		return fmt.Errorf("percentage must be <= 100: %w", domain.ErrBadRequest)
	case !in.ValidTo.After(in.ValidFrom):
		return fmt.Errorf("valid to date must be after valid from date: %w", domain.ErrBadRequest)
	case in.UsageLimit != nil && *in.UsageLimit < 0:
		return fmt.Errorf("usage limit must be >= 0: %w", domain.ErrBadRequest)
	case in.PerUserLimit != nil && *in.PerUserLimit <= 0:
		return fmt.Errorf("per-user limit must be > 0: %w", domain.ErrBadRequest)
	}
	return nil
}

// Create stores a new ACTIVE coupon. Codes are uppercased and unique
// ignoring case.
func (a *Admin) Create(ctx context.Context, in CreateInput) (domain.Coupon, error) {
	if err := in.validate(); err != nil {
		return domain.Coupon{}, err
	}
	now := a.now()
	c := domain.Coupon{
		ID:                uuid.NewString(),
		Code:              NormalizeCode(in.Code),
		Type:              in.Type,
		Value:             in.Value,
		MinOrderAmount:    in.MinOrderAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		UsageLimit:        in.UsageLimit,
		PerUserLimit:      in.PerUserLimit,
		ValidFrom:         in.ValidFrom.UTC(),
		ValidTo:           in.ValidTo.UTC(),
		Status:            domain.CouponActive,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := store.InTx(ctx, a.Store, a.Retries, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCoupon(ctx, c)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	log.Printf("[coupons] created code=%s type=%s", c.Code, c.Type)
	return c, nil
}

func (a *Admin) Get(ctx context.Context, id string) (domain.Coupon, error) {
	return a.Store.GetCoupon(ctx, id)
}

// List returns coupons newest first.
func (a *Admin) List(ctx context.Context, page domain.Page) ([]domain.Coupon, error) {
	return a.Store.ListCoupons(ctx, page)
}

// UpdateInput carries the terms to change; nil fields keep their value.
type UpdateInput struct {
	Type              *domain.CouponType
	Value             *decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	PerUserLimit      *int
	ValidFrom         *time.Time
	ValidTo           *time.Time
}

// Update edits a coupon's terms under its row lock. The window must still
// close after it opens, and the usage limit cannot drop below redemptions
// already counted.
func (a *Admin) Update(ctx context.Context, id string, in UpdateInput) (domain.Coupon, error) {
	var c domain.Coupon
	err := store.InTx(ctx, a.Store, a.Retries, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.LockCoupon(ctx, id)
		if err != nil {
			return err
		}
		c = in.apply(cur)
		terms := CreateInput{
			Code: c.Code, Type: c.Type, Value: c.Value,
			UsageLimit: c.UsageLimit, PerUserLimit: c.PerUserLimit,
			ValidFrom: c.ValidFrom, ValidTo: c.ValidTo,
		}
		if err := terms.validate(); err != nil {
			return err
		}
		if c.UsageLimit != nil && *c.UsageLimit < c.UsageCount {
			return fmt.Errorf("usage limit %d is below usage count %d: %w", *c.UsageLimit, c.UsageCount, domain.ErrBadRequest)
		}
		c.UpdatedAt = a.now()
		return tx.UpdateCoupon(ctx, c)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	log.Printf("[coupons] updated id=%s code=%s", c.ID, c.Code)
	return c, nil
}

func (in UpdateInput) apply(c domain.Coupon) domain.Coupon {
	if in.Type != nil {
		c.Type = *in.Type
	}
	if in.Value != nil {
		c.Value = *in.Value
	}
	if in.MinOrderAmount != nil {
		c.MinOrderAmount = in.MinOrderAmount
	}
	if in.MaxDiscountAmount != nil {
		c.MaxDiscountAmount = in.MaxDiscountAmount
	}
	if in.UsageLimit != nil {
		c.UsageLimit = in.UsageLimit
	}
	if in.PerUserLimit != nil {
		c.PerUserLimit = in.PerUserLimit
	}
	if in.ValidFrom != nil {
		c.ValidFrom = in.ValidFrom.UTC()
	}
	if in.ValidTo != nil {
		c.ValidTo = in.ValidTo.UTC()
	}
	return c
}

func (a *Admin) Activate(ctx context.Context, id string) (domain.Coupon, error) {
	return a.setStatus(ctx, id, domain.CouponActive)
}

func (a *Admin) Deactivate(ctx context.Context, id string) (domain.Coupon, error) {
	return a.setStatus(ctx, id, domain.CouponInactive)
}

func (a *Admin) setStatus(ctx context.Context, id string, status domain.CouponStatus) (domain.Coupon, error) {
	var c domain.Coupon
	err := store.InTx(ctx, a.Store, a.Retries, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetCouponStatus(ctx, id, status); err != nil {
			return err
		}
		var err error
		c, err = tx.GetCoupon(ctx, id)
		return err
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	log.Printf("[coupons] %s status=%s", c.Code, status)
	return c, nil
}

// ExpireStale marks ACTIVE coupons whose window has closed as EXPIRED.
func (a *Admin) ExpireStale(ctx context.Context) (int, error) {
	var n int
	err := store.InTx(ctx, a.Store, a.Retries, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.ExpireCoupons(ctx, a.now())
		return err
	})
	if err == nil && n > 0 {
		log.Printf("[coupons] expired %d coupon(s)", n)
	}
	return n, err
}
