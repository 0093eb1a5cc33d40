package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

const orderCols = `id, COALESCE(external_id, ''), order_number, user_id, email, phone, subtotal, discount,
	shipping, total, coupon_code, payment_method, status, notes, order_date, delivered_date, updated_at`

func scanOrder(r rowScanner) (domain.Order, error) {
	var o domain.Order
	err := r.Scan(&o.ID, &o.ExternalID, &o.OrderNumber, &o.UserID, &o.Email, &o.Phone, &o.Subtotal, &o.Discount,
		&o.Shipping, &o.Total, &o.CouponCode, &o.PaymentMethod, &o.Status, &o.Notes, &o.OrderDate, &o.DeliveredDate, &o.UpdatedAt)
	return o, err
}

func (r reader) getOrder(ctx context.Context, query, key string) (domain.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, notFound("order", key)
	}
	if err != nil {
		return domain.Order{}, mapErr(err)
	}
	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r reader) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	out := make(map[string][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT order_id, product_id, quantity, unit_price, size
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var it domain.OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Size); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, mapErr(rows.Err())
}

func (r reader) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
}

func (r reader) GetOrderByExternalID(ctx context.Context, externalID string) (domain.Order, error) {
	if externalID == "" {
		return domain.Order{}, notFound("order external_id", externalID)
	}
	return r.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1`, externalID)
}

func (r reader) ListOrders(ctx context.Context, status domain.OrderStatus, page domain.Page) ([]domain.Order, error) {
	page = page.Normalize()
	rows, err := r.q.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY order_date DESC, id DESC
		LIMIT $2 OFFSET $3`, string(status), page.Limit, page.Offset)
	if err != nil {
		return nil, mapErr(err)
	}
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}

	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (t *tx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders(id, external_id, order_number, user_id, email, phone, subtotal, discount, shipping,
			total, coupon_code, payment_method, status, notes, order_date, delivered_date, updated_at)
		VALUES ($1, NULLIF($2,''), $3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.ExternalID, o.OrderNumber, o.UserID, o.Email, o.Phone, o.Subtotal, o.Discount, o.Shipping,
		o.Total, o.CouponCode, o.PaymentMethod, string(o.Status), o.Notes, o.OrderDate, o.DeliveredDate, o.UpdatedAt)
	if isUniqueViolation(err, "orders_external_id_uq") {
		return fmt.Errorf("order external_id %s already exists: %w", o.ExternalID, domain.ErrBadRequest)
	}
	if err != nil {
		return mapErr(err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, line_no, product_id, quantity, unit_price, size)
			VALUES ($1,$2,$3,$4,$5,$6)`, o.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice, it.Size)
	}
	if batch.Len() == 0 {
		return nil
	}
	return mapErr(t.sendBatch(ctx, batch))
}

func (t *tx) sendBatch(ctx context.Context, b *pgx.Batch) error {
	pgTx, ok := t.q.(pgx.Tx)
	if !ok {
		return errors.New("batch outside transaction")
	}
	return pgTx.SendBatch(ctx, b).Close()
}

// LockOrder holds the order row until the transaction ends, so transitions
// of one order run one at a time.
func (t *tx) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	return t.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, o domain.Order) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status=$2, notes=$3, delivered_date=$4, updated_at=$5 WHERE id=$1`,
		o.ID, string(o.Status), o.Notes, o.DeliveredDate, o.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("order", o.ID)
	}
	return nil
}
