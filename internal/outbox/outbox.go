// Package outbox implements the notification outbox: producers insert PENDING
// rows next to their business writes, and a single worker drains them with
// bounded retries. Delivery is at-least-once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

type Outbox struct {
	Store   store.Store
	Retries int
	Now     func() time.Time
}

func (o *Outbox) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Enqueue queues a message in its own unit of work and returns the entry id.
func (o *Outbox) Enqueue(ctx context.Context, typ domain.ChannelType, recipient, templateID string, payload map[string]any) (string, error) {
	e, err := o.build(typ, recipient, templateID, payload)
	if err != nil {
		return "", err
	}
	err = store.InTx(ctx, o.Store, o.Retries, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertOutbox(ctx, e)
	})
	if err != nil {
		return "", err
	}
	log.Printf("[outbox] queued id=%s type=%s template=%s", e.ID, e.Type, e.TemplateID)
	return e.ID, nil
}

// EnqueueTx queues a message inside the caller's unit of work, so the message
// exists only if the business write commits.
func (o *Outbox) EnqueueTx(ctx context.Context, tx store.Tx, typ domain.ChannelType, recipient, templateID string, payload map[string]any) (string, error) {
	e, err := o.build(typ, recipient, templateID, payload)
	if err != nil {
		return "", err
	}
	if err := tx.InsertOutbox(ctx, e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (o *Outbox) build(typ domain.ChannelType, recipient, templateID string, payload map[string]any) (domain.OutboxEntry, error) {
	if typ != domain.ChannelEmail && typ != domain.ChannelSMS {
		return domain.OutboxEntry{}, fmt.Errorf("unknown channel %q: %w", typ, domain.ErrBadRequest)
	}
	if recipient == "" || templateID == "" {
		return domain.OutboxEntry{}, fmt.Errorf("recipient and template required: %w", domain.ErrBadRequest)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	now := o.now()
	return domain.OutboxEntry{
		ID:         uuid.NewString(),
		Type:       typ,
		Recipient:  recipient,
		TemplateID: templateID,
		Payload:    b,
		Status:     domain.OutboxPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
