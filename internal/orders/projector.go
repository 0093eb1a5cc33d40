package orders

import (
	"context"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/kafka"
)

// Projector keeps the order status cache in step with order events, for
// processes that did not make the change themselves.
type Projector struct {
	Cache StatusCache
	// Seen reports whether eventID is new; nil disables dedup.
	Seen func(ctx context.Context, eventID string) (bool, error)
}

// Handle is a kafka.Handler. Malformed messages are skipped so they do not
// block the partition. Events are applied by OccurredAt, so one that arrives
// after a newer change leaves the cache alone.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := kafka.UnmarshalEnvelope(m.Value, &env); err != nil {
		log.Printf("[projector] skip malformed message offset=%d: %v", m.Offset, err)
		return nil
	}

	var orderID string
	var status domain.OrderStatus
	switch env.EventType {
	case EventOrderPlaced:
		pl, err := kafka.UnwrapPayload[OrderPlacedPayload](env.Payload)
		if err != nil {
			log.Printf("[projector] skip %s: %v", env.EventID, err)
			return nil
		}
		orderID, status = pl.OrderID, domain.OrderPending
	case EventOrderStatusChanged:
		pl, err := kafka.UnwrapPayload[StatusChangedPayload](env.Payload)
		if err != nil {
			log.Printf("[projector] skip %s: %v", env.EventID, err)
			return nil
		}
		orderID, status = pl.OrderID, pl.To
	default:
		return nil
	}

	if p.Seen != nil {
		first, err := p.Seen(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
	}
	return p.Cache.SetStatus(ctx, orderID, status, env.OccurredAt)
}
