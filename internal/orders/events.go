package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`                 // uuid
	EventType     string          `json:"event_type"`               // salah satu const di atas
	EventVersion  int             `json:"event_version"`            // 1
	OccurredAt    time.Time       `json:"occurred_at"`              // RFC3339
	Producer      string          `json:"producer"`                 // e.g., "storefront-api"
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, correlationID string, at time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at,
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	ExternalID  string `json:"external_id,omitempty"`
	UserID      string `json:"user_id"`
	Total       string `json:"total"` // decimal string
	CouponCode  string `json:"coupon_code,omitempty"`
}

type StatusChangedPayload struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	From        domain.OrderStatus `json:"from"`
	To          domain.OrderStatus `json:"to"`
	ChangedBy   string             `json:"changed_by,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}
