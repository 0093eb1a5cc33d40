package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

// SetAlert configures a per-product low-stock threshold.
func (l *Ledger) SetAlert(ctx context.Context, productID string, threshold int, active bool) error {
	if threshold < 0 {
		return fmt.Errorf("threshold must be >= 0: %w", domain.ErrBadRequest)
	}
	return store.InTx(ctx, l.Store, l.Retries, func(ctx context.Context, tx store.Tx) error {
		return tx.UpsertStockAlert(ctx, domain.StockAlert{
			ProductID: productID,
			Threshold: threshold,
			Active:    active,
			CreatedAt: l.now(),
		})
	})
}

// LowStockAlerts returns products at or below their own active alert
// threshold and stamps last_alerted_at on each alert returned.
func (l *Ledger) LowStockAlerts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := store.InTx(ctx, l.Store, l.Retries, func(ctx context.Context, tx store.Tx) error {
		out = out[:0]
		alerts, err := tx.ListStockAlerts(ctx)
		if err != nil {
			return err
		}
		now := l.now()
		for _, a := range alerts {
			if !a.Active {
				continue
			}
			p, err := tx.GetProduct(ctx, a.ProductID)
			if err != nil {
				return err
			}
			if p.StockCount > a.Threshold {
				continue
			}
			if err := tx.TouchStockAlert(ctx, a.ProductID, now); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}
