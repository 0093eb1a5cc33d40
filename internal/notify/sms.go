package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type SMSRequest struct {
	To          string    `json:"to"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
}

// KafkaSMS hands SMS to the gateway consuming the SMS topic. The write is
// synchronous so a broker failure counts as a failed attempt.
type KafkaSMS struct {
	W MessageWriter
}

func (k KafkaSMS) SendSMS(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("sms recipient is empty")
	}
	b, err := json.Marshal(SMSRequest{To: to, Body: body, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := k.W.WriteMessages(ctx, kafka.Message{Key: []byte(to), Value: b}); err != nil {
		return fmt.Errorf("sms gateway write: %w", err)
	}
	return nil
}
