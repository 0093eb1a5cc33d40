// Package orders is the order state machine. A transition locks the order
// row, writes the new status, and applies its side effects (restock on
// cancel, customer notification) in the same unit of work.
package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ariefcatur/storefront-core/internal/audit"
	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/inventory"
	"github.com/ariefcatur/storefront-core/internal/outbox"
	"github.com/ariefcatur/storefront-core/internal/store"
)

const (
	DefaultCancelReason = "No reason provided"
	noteTimeLayout      = "2006-01-02 15:04:05"
	refTypeOrder        = "ORDER"
)

// Publisher sends an already-encoded event. Implemented by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// StatusCache is the read-side cache of order status (redis).
type StatusCache interface {
	// SetStatus keeps the newest status by at and ignores older ones.
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error
}

type Workflow struct {
	Store   store.Store
	Ledger  *inventory.Ledger
	Outbox  *outbox.Outbox
	Events  Publisher   // optional
	Cache   StatusCache // optional
	Audit   audit.Sink  // optional
	Source  string      // event producer name
	Retries int
	Now     func() time.Time
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

type change struct {
	order   domain.Order
	from    domain.OrderStatus
	changed bool
}

// Transition moves the order to target. Moving an open order to its current
// status succeeds without writing anything.
func (w *Workflow) Transition(ctx context.Context, orderID string, target domain.OrderStatus, notes, actorID string) (domain.Order, error) {
	c, err := w.run(ctx, orderID, func(o domain.Order) error { return nil }, target, notes, actorID)
	if err != nil {
		return domain.Order{}, err
	}
	if c.changed {
		meta := map[string]string{"newStatus": string(target), "orderNumber": c.order.OrderNumber}
		w.afterCommit(ctx, c, actorID, audit.ActionOrderStatusChanged, meta, notes)
	}
	return c.order, nil
}

// Cancel is a transition to CANCELLED. Delivered orders go through refund.
func (w *Workflow) Cancel(ctx context.Context, orderID, reason, actorID string) (domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	guard := func(o domain.Order) error {
		switch {
		case o.Status == domain.OrderDelivered:
			return fmt.Errorf("order %s is delivered, refund instead: %w", o.OrderNumber, domain.ErrBadRequest)
		case IsTerminal(o.Status):
			return fmt.Errorf("order %s is already %s: %w: %w", o.OrderNumber, o.Status, domain.ErrBadRequest, domain.ErrTerminalState)
		}
		return nil
	}
	c, err := w.run(ctx, orderID, guard, domain.OrderCancelled, reason, actorID)
	if err != nil {
		return domain.Order{}, err
	}
	meta := map[string]string{"reason": reason, "orderNumber": c.order.OrderNumber}
	w.afterCommit(ctx, c, actorID, audit.ActionOrderCancelled, meta, reason)
	return c.order, nil
}

func (w *Workflow) Get(ctx context.Context, id string) (domain.Order, error) {
	return w.Store.GetOrder(ctx, id)
}

// List returns orders newest first. An empty status lists every order.
func (w *Workflow) List(ctx context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrBadRequest)
	}
	return w.Store.ListOrders(ctx, status, page.Normalize())
}

func (w *Workflow) run(ctx context.Context, orderID string, guard func(domain.Order) error, target domain.OrderStatus, notes, actorID string) (change, error) {
	var c change
	err := store.InTx(ctx, w.Store, w.Retries, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := guard(o); err != nil {
			return err
		}
		if err := CheckTransition(o.Status, target); err != nil {
			return err
		}
		c = change{order: o, from: o.Status}
		if o.Status == target {
			return nil
		}
		o, err = w.apply(ctx, tx, o, target, notes, actorID)
		if err != nil {
			return err
		}
		c.order, c.changed = o, true
		return nil
	})
	return c, err
}

func (w *Workflow) apply(ctx context.Context, tx store.Tx, o domain.Order, target domain.OrderStatus, notes, actorID string) (domain.Order, error) {
	now := w.now()
	from := o.Status
	ts := now.Format(noteTimeLayout)

	switch {
	case target == domain.OrderCancelled:
		if strings.TrimSpace(notes) == "" {
			notes = DefaultCancelReason
		}
		o.Notes = appendNote(o.Notes, fmt.Sprintf("[CANCELLED - %s] %s", ts, notes))
	case strings.TrimSpace(notes) != "":
		o.Notes = appendNote(o.Notes, fmt.Sprintf("[%s] %s", ts, notes))
	}
	if target == domain.OrderDelivered {
		o.DeliveredDate = &now
	}
	o.Status = target
	o.UpdatedAt = now

	if target == domain.OrderCancelled {
		for _, it := range o.Items {
			_, err := w.Ledger.AdjustTx(ctx, tx, inventory.Adjustment{
				ProductID: it.ProductID,
				Delta:     it.Quantity,
				Reason:    domain.ReasonReturn,
				Reference: &domain.Reference{Type: refTypeOrder, ID: o.ID},
				ActorID:   actorID,
				Notes:     "restock for cancelled order " + o.OrderNumber,
			})
			if err != nil {
				return o, fmt.Errorf("restock %s: %w", it.ProductID, err)
			}
		}
	}

	if err := tx.UpdateOrderStatus(ctx, o); err != nil {
		return o, err
	}

	payload := map[string]any{
		"orderNumber":    o.OrderNumber,
		"status":         string(target),
		"previousStatus": string(from),
		"notes":          notes,
	}
	if _, err := w.Outbox.EnqueueTx(ctx, tx, domain.ChannelEmail, o.Email, outbox.TemplateOrderStatusChanged, payload); err != nil {
		return o, err
	}
	if o.Phone != "" {
		if _, err := w.Outbox.EnqueueTx(ctx, tx, domain.ChannelSMS, o.Phone, outbox.TemplateOrderStatusSMS, payload); err != nil {
			return o, err
		}
	}
	return o, nil
}

// afterCommit runs the best-effort side effects that live outside the
// database: event, cache, audit. Failures are logged only.
func (w *Workflow) afterCommit(ctx context.Context, c change, actorID, action string, meta map[string]string, reason string) {
	o := c.order
	log.Printf("[orders] %s %s -> %s by=%s", o.OrderNumber, c.from, o.Status, actorID)

	if w.Events != nil {
		env, err := NewEnvelope(EventOrderStatusChanged, w.Source, o.ID, o.UpdatedAt, StatusChangedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			From:        c.from,
			To:          o.Status,
			ChangedBy:   actorID,
			Reason:      reason,
		})
		if err == nil {
			err = publishJSON(ctx, w.Events, PartitionKey(o.ID), env)
		}
		if err != nil {
			log.Printf("[orders] publish %s for %s: %v", EventOrderStatusChanged, o.ID, err)
		}
	}
	if w.Cache != nil {
		if err := w.Cache.SetStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
			log.Printf("[orders] cache status %s: %v", o.ID, err)
		}
	}
	audit.Record(ctx, w.Audit, audit.Entry{
		ActorID:  actorID,
		Entity:   "order",
		EntityID: o.ID,
		Action:   action,
		Metadata: meta,
		At:       w.now(),
	})
}

func appendNote(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
