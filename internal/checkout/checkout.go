// Package checkout places orders: prices the cart, applies a coupon, takes
// stock, records the order, redeems the coupon and queues the confirmation
// message in one unit of work.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/coupons"
	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/inventory"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/outbox"
	"github.com/ariefcatur/storefront-core/internal/store"
)

// Idempotency is the fast path for repeated ExternalIDs (redis). The
// orders.external_id unique column stays the source of truth.
type Idempotency interface {
	Lookup(ctx context.Context, externalID string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, externalID, orderID string) error
}

type Service struct {
	Store       store.Store
	Ledger      *inventory.Ledger
	Coupons     *coupons.Redeemer
	Outbox      *outbox.Outbox
	Events      orders.Publisher // optional
	Idem        Idempotency      // optional
	ShippingFee decimal.Decimal
	Source      string
	Retries     int
	Now         func() time.Time
}

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type Request struct {
	ExternalID    string `json:"external_id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	Items         []Item `json:"items"`
	CouponCode    string `json:"coupon_code,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type Result struct {
	Order   domain.Order
	Existed bool // external_id sudah pernah dipakai
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func validate(req Request) error {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Email) == "" {
		return fmt.Errorf("user_id and email required: %w", domain.ErrBadRequest)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("at least one item required: %w", domain.ErrBadRequest)
	}
	for i, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return &domain.LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("quantity must be > 0: %w", domain.ErrBadRequest)}
		}
	}
	return nil
}

// PlaceOrder creates a PENDING order. A repeated ExternalID returns the
// order created by the first call.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	if o, ok := s.existing(ctx, req.ExternalID); ok {
		return Result{Order: o, Existed: true}, nil
	}

	var placed domain.Order
	err := store.InTx(ctx, s.Store, s.Retries, func(ctx context.Context, tx store.Tx) error {
		o, err := s.place(ctx, tx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		// concurrent retry dengan external_id yang sama
		if req.ExternalID != "" && errors.Is(err, domain.ErrBadRequest) {
			if o, getErr := s.Store.GetOrderByExternalID(ctx, req.ExternalID); getErr == nil {
				return Result{Order: o, Existed: true}, nil
			}
		}
		return Result{}, err
	}

	log.Printf("[checkout] order placed id=%s number=%s total=%s", placed.ID, placed.OrderNumber, placed.Total.StringFixed(2))
	s.afterCommit(ctx, placed)
	return Result{Order: placed}, nil
}

func (s *Service) existing(ctx context.Context, externalID string) (domain.Order, bool) {
	if externalID == "" {
		return domain.Order{}, false
	}
	if s.Idem != nil {
		id, ok, err := s.Idem.Lookup(ctx, externalID)
		if err != nil {
			log.Printf("[checkout] idempotency lookup %s: %v", externalID, err)
		}
		if ok {
			if o, err := s.Store.GetOrder(ctx, id); err == nil {
				return o, true
			}
		}
	}
	o, err := s.Store.GetOrderByExternalID(ctx, externalID)
	if err != nil {
		return domain.Order{}, false
	}
	return o, true
}

func (s *Service) place(ctx context.Context, tx store.Tx, req Request) (domain.Order, error) {
	now := s.now()
	orderID := uuid.NewString()

	items := make([]domain.OrderItem, len(req.Items))
	subtotal := decimal.Zero
	for i, it := range req.Items {
		p, err := tx.GetProduct(ctx, it.ProductID)
		if err != nil {
			return domain.Order{}, &domain.LineItemError{Index: i, ProductID: it.ProductID, Err: err}
		}
		items[i] = domain.OrderItem{ProductID: p.ID, Quantity: it.Quantity, UnitPrice: p.Price, Size: it.Size}
		subtotal = subtotal.Add(items[i].LineTotal())
	}

	shipping := s.ShippingFee

	var coupon domain.Coupon
	discount := decimal.Zero
	code := coupons.NormalizeCode(req.CouponCode)
	if code != "" {
		c, err := s.Coupons.ValidateTx(ctx, tx, code, subtotal, req.UserID)
		if err != nil {
			return domain.Order{}, &domain.CouponError{Code: code, Err: err}
		}
		d, err := coupons.Discount(c, subtotal, shipping)
		if err != nil {
			return domain.Order{}, &domain.CouponError{Code: code, Err: err}
		}
		coupon, discount = c, d
	}

	for i, it := range items {
		_, err := s.Ledger.AdjustTx(ctx, tx, inventory.Adjustment{
			ProductID: it.ProductID,
			Delta:     -it.Quantity,
			Reason:    domain.ReasonPurchase,
			Reference: &domain.Reference{Type: "ORDER", ID: orderID},
			ActorID:   req.UserID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrTransient) {
				return domain.Order{}, err
			}
			return domain.Order{}, &domain.LineItemError{Index: i, ProductID: it.ProductID, Err: err}
		}
	}

	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o := domain.Order{
		ID:            orderID,
		ExternalID:    req.ExternalID,
		OrderNumber:   orderNumber(now),
		UserID:        req.UserID,
		Email:         req.Email,
		Phone:         req.Phone,
		Items:         items,
		Subtotal:      subtotal,
		Discount:      discount,
		Shipping:      shipping,
		Total:         total,
		CouponCode:    code,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.OrderPending,
		OrderDate:     now,
		UpdatedAt:     now,
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return domain.Order{}, err
	}

	if coupon.ID != "" {
		if _, err := s.Coupons.RedeemTx(ctx, tx, coupon.ID, req.UserID, orderID, discount); err != nil {
			if errors.Is(err, domain.ErrTransient) {
				return domain.Order{}, err
			}
			return domain.Order{}, &domain.CouponError{Code: code, Err: err}
		}
	}

	_, err := s.Outbox.EnqueueTx(ctx, tx, domain.ChannelEmail, o.Email, outbox.TemplateOrderConfirmation, map[string]any{
		"orderNumber": o.OrderNumber,
		"subtotal":    o.Subtotal.StringFixed(2),
		"discount":    o.Discount.StringFixed(2),
		"shipping":    o.Shipping.StringFixed(2),
		"total":       o.Total.StringFixed(2),
	})
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Service) afterCommit(ctx context.Context, o domain.Order) {
	if s.Idem != nil && o.ExternalID != "" {
		if err := s.Idem.Remember(ctx, o.ExternalID, o.ID); err != nil {
			log.Printf("[checkout] idempotency remember %s: %v", o.ExternalID, err)
		}
	}
	if s.Events == nil {
		return
	}
	env, err := orders.NewEnvelope(orders.EventOrderPlaced, s.Source, o.ID, o.OrderDate, orders.OrderPlacedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		ExternalID:  o.ExternalID,
		UserID:      o.UserID,
		Total:       o.Total.StringFixed(2),
		CouponCode:  o.CouponCode,
	})
	if err == nil {
		err = orders.PublishPlaced(ctx, s.Events, s.Source, env)
	}
	if err != nil {
		log.Printf("[checkout] publish %s for %s: %v", orders.EventOrderPlaced, o.ID, err)
	}
}

// orderNumber formats ORD-YYYYMMDD-XXXXXXXX.
func orderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + at.Format("20060102") + "-" + suffix
}
