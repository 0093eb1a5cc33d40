package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

const productCols = `id, name, price, stock_count, in_stock, initial_stock, created_at, updated_at`

func scanProduct(r rowScanner) (domain.Product, error) {
	var p domain.Product
	err := r.Scan(&p.ID, &p.Name, &p.Price, &p.StockCount, &p.InStock, &p.InitialStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r reader) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, notFound("product", id)
	}
	return p, mapErr(err)
}

func (r reader) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

const movementCols = `id, product_id, delta, reason, reference_type, reference_id, notes, actor_id, created_at`

func (r reader) ListMovements(ctx context.Context, productID string, page domain.Page) ([]domain.InventoryMovement, error) {
	page = page.Normalize()
	rows, err := r.q.Query(ctx, `
		SELECT `+movementCols+` FROM inventory_movements
		WHERE product_id=$1 ORDER BY seq DESC LIMIT $2 OFFSET $3`, productID, page.Limit, page.Offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.InventoryMovement
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Reason, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err())
}

func (r reader) SumMovements(ctx context.Context, productID string) (int, error) {
	var sum int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM inventory_movements WHERE product_id=$1`, productID).Scan(&sum)
	return sum, mapErr(err)
}

func (r reader) ListStockAlerts(ctx context.Context) ([]domain.StockAlert, error) {
	rows, err := r.q.Query(ctx, `
		SELECT product_id, threshold, active, last_alerted_at, created_at
		FROM stock_alerts ORDER BY product_id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.StockAlert
	for rows.Next() {
		var a domain.StockAlert
		if err := rows.Scan(&a.ProductID, &a.Threshold, &a.Active, &a.LastAlertedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO products(id, name, price, stock_count, in_stock, initial_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Price, p.StockCount, p.InStock, p.InitialStock, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

// AdjustStock is a single conditional UPDATE: the row lock taken by the
// UPDATE serializes concurrent adjustments and the WHERE clause is
// re-checked against the committed value.
func (t *tx) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		UPDATE products
		SET stock_count = stock_count + $2,
		    in_stock    = stock_count + $2 > 0,
		    updated_at  = now()
		WHERE id = $1 AND stock_count + $2 >= 0
		RETURNING stock_count`, productID, delta).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, mapErr(err)
	}

	// 0 rows: produk tidak ada, atau stok kurang
	p, err := t.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.StockCount, fmt.Errorf("product %s: %w", productID, domain.ErrInsufficientStock)
}

func (t *tx) InsertMovement(ctx context.Context, m domain.InventoryMovement) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO inventory_movements(id, product_id, delta, reason, reference_type, reference_id, notes, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.ProductID, m.Delta, string(m.Reason), m.ReferenceType, m.ReferenceID, m.Notes, m.ActorID, m.CreatedAt)
	return mapErr(err)
}

func (t *tx) UpsertStockAlert(ctx context.Context, a domain.StockAlert) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_alerts(product_id, threshold, active, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id) DO UPDATE SET threshold = EXCLUDED.threshold, active = EXCLUDED.active`,
		a.ProductID, a.Threshold, a.Active, a.CreatedAt)
	return mapErr(err)
}

func (t *tx) TouchStockAlert(ctx context.Context, productID string, at time.Time) error {
	ct, err := t.q.Exec(ctx, `UPDATE stock_alerts SET last_alerted_at=$2 WHERE product_id=$1`, productID, at)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("stock alert", productID)
	}
	return nil
}
