// Package inventory owns product stock counts and their append-only movement
// history. The stock_count column is a cached projection of
// initial_stock + sum(movements.delta); every change goes through Adjust.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

const DefaultLowStockThreshold = 10

type Ledger struct {
	Store   store.Store
	Retries int              // percobaan untuk ErrTransient, default store.DefaultRetryAttempts
	Now     func() time.Time // nil = time.Now
}

type Adjustment struct {
	ProductID string
	Delta     int
	Reason    domain.MovementReason
	Reference *domain.Reference
	ActorID   string
	Notes     string
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Adjust applies one adjustment in its own unit of work.
func (l *Ledger) Adjust(ctx context.Context, a Adjustment) (int, error) {
	var newCount int
	err := store.InTx(ctx, l.Store, l.Retries, func(ctx context.Context, tx store.Tx) error {
		n, err := l.AdjustTx(ctx, tx, a)
		if err != nil {
			return err
		}
		newCount = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[ledger] product=%s delta=%d reason=%s stock=%d", a.ProductID, a.Delta, a.Reason, newCount)
	return newCount, nil
}

// AdjustTx joins the caller's unit of work. The counter update is a
// conditional write (stock + delta >= 0) and the movement row is appended in
// the same unit, so both land or neither does.
func (l *Ledger) AdjustTx(ctx context.Context, tx store.Tx, a Adjustment) (int, error) {
	if a.ProductID == "" {
		return 0, fmt.Errorf("product id required: %w", domain.ErrBadRequest)
	}
	if a.Delta == 0 {
		return 0, fmt.Errorf("delta must be non-zero: %w", domain.ErrBadRequest)
	}
	if !a.Reason.Valid() {
		return 0, fmt.Errorf("unknown movement reason %q: %w", a.Reason, domain.ErrBadRequest)
	}

	newCount, err := tx.AdjustStock(ctx, a.ProductID, a.Delta)
	if errors.Is(err, domain.ErrInsufficientStock) {
		return 0, &domain.StockError{ProductID: a.ProductID, Available: newCount, Delta: a.Delta}
	}
	if err != nil {
		return 0, err
	}

	m := domain.InventoryMovement{
		ID:        uuid.NewString(),
		ProductID: a.ProductID,
		Delta:     a.Delta,
		Reason:    a.Reason,
		Notes:     a.Notes,
		ActorID:   a.ActorID,
		CreatedAt: l.now(),
	}
	if a.Reference != nil {
		m.ReferenceType = a.Reference.Type
		m.ReferenceID = a.Reference.ID
	}
	if err := tx.InsertMovement(ctx, m); err != nil {
		return 0, err
	}
	return newCount, nil
}

// Movements returns the product's history, newest first.
func (l *Ledger) Movements(ctx context.Context, productID string, page domain.Page) ([]domain.InventoryMovement, error) {
	if _, err := l.Store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return l.Store.ListMovements(ctx, productID, page.Normalize())
}

// LowStock scans every product; there is no index on stock_count.
func (l *Ledger) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0: %w", domain.ErrBadRequest)
	}
	all, err := l.Store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0)
	for _, p := range all {
		if p.StockCount <= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateProduct registers a product's stock record. InitialStock is the ledger
// baseline and never changes afterwards.
func (l *Ledger) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.StockCount < 0 {
		return domain.Product{}, fmt.Errorf("initial stock must be >= 0: %w", domain.ErrBadRequest)
	}
	if p.Price.IsNegative() {
		return domain.Product{}, fmt.Errorf("price must be >= 0: %w", domain.ErrBadRequest)
	}
	now := l.now()
	p.InitialStock = p.StockCount
	p.InStock = p.StockCount > 0
	p.CreatedAt, p.UpdatedAt = now, now

	err := store.InTx(ctx, l.Store, l.Retries, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	if err != nil {
		return domain.Product{}, err
	}
	log.Printf("[ledger] product created id=%s stock=%d", p.ID, p.StockCount)
	return p, nil
}

type Reconciliation struct {
	ProductID    string
	InitialStock int
	MovementSum  int
	StockCount   int
}

func (r Reconciliation) Consistent() bool {
	return r.InitialStock+r.MovementSum == r.StockCount
}

// Reconcile recomputes the balance from the movement history.
func (l *Ledger) Reconcile(ctx context.Context, productID string) (Reconciliation, error) {
	var rec Reconciliation
	err := l.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := tx.SumMovements(ctx, productID)
		if err != nil {
			return err
		}
		rec = Reconciliation{ProductID: productID, InitialStock: p.InitialStock, MovementSum: sum, StockCount: p.StockCount}
		return nil
	})
	return rec, err
}
