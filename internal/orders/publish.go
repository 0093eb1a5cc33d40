package orders

import (
	"context"

	"github.com/ariefcatur/storefront-core/internal/kafka"
)

func publishJSON(ctx context.Context, p Publisher, key []byte, v any) error {
	b, err := kafka.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, key, b)
}

// PublishPlaced emits OrderPlaced for a freshly committed order.
func PublishPlaced(ctx context.Context, p Publisher, source string, env Envelope) error {
	if p == nil {
		return nil
	}
	if env.Producer == "" {
		env.Producer = source
	}
	return publishJSON(ctx, p, PartitionKey(env.CorrelationID), env)
}
