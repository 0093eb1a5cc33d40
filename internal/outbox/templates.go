package outbox

import (
	"context"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

const (
	TemplateOrderConfirmation  = "order-confirmation"
	TemplateOrderStatusChanged = "order-status-changed"
	TemplateOrderStatusSMS     = "order-status-changed-sms"
)

// DefaultTemplates mirrors the rows seeded by the Postgres migration.
var DefaultTemplates = []domain.Template{
	{
		ID:           TemplateOrderConfirmation,
		Name:         "Order confirmation",
		Type:         domain.ChannelEmail,
		Subject:      "Order {orderNumber} received",
		BodyTemplate: "Thanks for your order {orderNumber}.\nSubtotal: {subtotal}\nDiscount: {discount}\nShipping: {shipping}\nTotal: {total}",
		Active:       true,
	},
	{
		ID:           TemplateOrderStatusChanged,
		Name:         "Order status changed",
		Type:         domain.ChannelEmail,
		Subject:      "Order {orderNumber} is now {status}",
		BodyTemplate: "Your order {orderNumber} moved from {previousStatus} to {status}.\n{notes}",
		Active:       true,
	},
	{
		ID:           TemplateOrderStatusSMS,
		Name:         "Order status changed (SMS)",
		Type:         domain.ChannelSMS,
		BodyTemplate: "Order {orderNumber}: {status}",
		Active:       true,
	},
}

// SeedTemplates upserts DefaultTemplates.
func SeedTemplates(ctx context.Context, st store.Store) error {
	return st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, t := range DefaultTemplates {
			if err := tx.UpsertTemplate(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}
