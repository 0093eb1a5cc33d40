package orders

import (
	"fmt"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

// Happy path: PENDING -> CONFIRMED -> PROCESSING -> PACKED -> SHIPPED -> DELIVERED.
// CANCELLED dan REFUNDED terminal; DELIVERED hanya bisa ke REFUNDED.
var validNext = map[domain.OrderStatus]map[domain.OrderStatus]bool{
	domain.OrderPending:    {domain.OrderConfirmed: true, domain.OrderCancelled: true, domain.OrderRefunded: true},
	domain.OrderConfirmed:  {domain.OrderProcessing: true, domain.OrderCancelled: true, domain.OrderRefunded: true},
	domain.OrderProcessing: {domain.OrderPacked: true, domain.OrderCancelled: true, domain.OrderRefunded: true},
	domain.OrderPacked:     {domain.OrderShipped: true, domain.OrderCancelled: true, domain.OrderRefunded: true},
	domain.OrderShipped:    {domain.OrderDelivered: true, domain.OrderCancelled: true, domain.OrderRefunded: true},
	domain.OrderDelivered:  {domain.OrderRefunded: true},
	domain.OrderCancelled:  {},
	domain.OrderRefunded:   {},
}

func ValidStatus(s domain.OrderStatus) bool {
	_, ok := validNext[s]
	return ok
}

func IsTerminal(s domain.OrderStatus) bool {
	return s == domain.OrderCancelled || s == domain.OrderRefunded
}

func CanTransition(from, to domain.OrderStatus) bool {
	return validNext[from][to]
}

// CheckTransition reports whether from -> to is allowed. A move to the
// current status of an open order is allowed and means "no change".
func CheckTransition(from, to domain.OrderStatus) error {
	if !ValidStatus(to) {
		return fmt.Errorf("unknown status %q: %w", to, domain.ErrBadRequest)
	}
	if IsTerminal(from) {
		return fmt.Errorf("order is %s: %w", from, domain.ErrTerminalState)
	}
	if from == to || CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition)
}
