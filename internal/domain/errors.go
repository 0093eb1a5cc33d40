package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTerminalState     = errors.New("order is in a terminal state")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrCouponInvalid         = errors.New("coupon invalid")
	ErrCouponExpired         = fmt.Errorf("%w: expired", ErrCouponInvalid)
	ErrCouponInactive        = fmt.Errorf("%w: inactive", ErrCouponInvalid)
	ErrMinOrderNotMet        = fmt.Errorf("%w: minimum order amount not met", ErrCouponInvalid)
	ErrUsageLimitExceeded    = errors.New("coupon usage limit exceeded")
	ErrPerUserLimitExceeded  = fmt.Errorf("%w: per-user limit reached", ErrUsageLimitExceeded)
	ErrUnsupportedCouponType = errors.New("coupon type has no automatic discount")
	ErrDuplicateCoupon       = errors.New("coupon code already exists")

	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInactive = errors.New("template inactive")
	ErrInvalidPayload   = errors.New("invalid notification payload")

	// ErrTransient marks lock timeouts and connection failures; safe to retry.
	ErrTransient = errors.New("transient store error")
)

// StockError is returned when an adjustment would drive stock below zero.
type StockError struct {
	ProductID string
	Available int
	Delta     int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, delta %d", e.ProductID, e.Available, e.Delta)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// LineItemError points a checkout failure at the offending cart line.
type LineItemError struct {
	Index     int
	ProductID string
	Err       error
}

func (e *LineItemError) Error() string {
	return fmt.Sprintf("item %d (product %s): %v", e.Index, e.ProductID, e.Err)
}

func (e *LineItemError) Unwrap() error { return e.Err }

// CouponError points a checkout failure at the supplied coupon code.
type CouponError struct {
	Code string
	Err  error
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %s: %v", e.Code, e.Err)
}

func (e *CouponError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
