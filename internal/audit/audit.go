// Package audit records who did what to which entity. Recording is fire and
// forget: callers never see a failure.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const TopicAudit = "audit.events"

const (
	ActionOrderStatusChanged = "ORDER_STATUS_CHANGED"
	ActionOrderCancelled     = "ORDER_CANCELLED"
	ActionStockAdjusted      = "STOCK_ADJUSTED"
	ActionCouponCreated      = "COUPON_CREATED"
	ActionCouponStatus       = "COUPON_STATUS_CHANGED"
	ActionCouponUpdated      = "COUPON_UPDATED"
)

type Entry struct {
	ActorID  string            `json:"actor_id"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entity_id"`
	Action   string            `json:"action"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

// LogSink writes entries to the process log.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Entry) {
	log.Printf("[audit] actor=%s entity=%s/%s action=%s meta=%v", e.ActorID, e.Entity, e.EntityID, e.Action, e.Metadata)
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink publishes entries keyed by entity id. Publish failures are logged
// and the entry is handed to Fallback when set.
type KafkaSink struct {
	Pub      Publisher
	Fallback Sink
}

func (k KafkaSink) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err == nil {
		err = k.Pub.Publish(ctx, []byte(e.EntityID), b)
	}
	if err != nil {
		log.Printf("[audit] publish %s %s/%s: %v", e.Action, e.Entity, e.EntityID, err)
		if k.Fallback != nil {
			k.Fallback.Record(ctx, e)
		}
	}
}

// Record is a nil-safe helper for optional sinks.
func Record(ctx context.Context, s Sink, e Entry) {
	if s == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.Record(ctx, e)
}
