package coupons

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the amount a coupon takes off an order. FREE_SHIPPING
// returns the shipping cost; the caller applies it against shipping.
// BUY_X_GET_Y has no defined computation and always fails.
func Discount(c domain.Coupon, subtotal, shipping decimal.Decimal) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch c.Type {
	case domain.CouponPercentage:
		d = subtotal.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscountAmount != nil && d.GreaterThan(*c.MaxDiscountAmount) {
			d = *c.MaxDiscountAmount
		}
	case domain.CouponFixedAmount:
		d = decimal.Min(c.Value, subtotal)
	case domain.CouponFreeShipping:
		d = shipping
	case domain.CouponBuyXGetY:
		return decimal.Zero, fmt.Errorf("%s: %w", c.Type, domain.ErrUnsupportedCouponType)
	default:
		return decimal.Zero, fmt.Errorf("unknown coupon type %q: %w", c.Type, domain.ErrBadRequest)
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d, nil
}
