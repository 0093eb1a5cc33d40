package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

const couponCols = `id, code, type, value, min_order_amount, max_discount_amount, usage_limit,
	per_user_limit, usage_count, valid_from, valid_to, status, created_by, created_at, updated_at`

func scanCoupon(r rowScanner) (domain.Coupon, error) {
	var c domain.Coupon
	var minOrder, maxDiscount decimal.NullDecimal
	err := r.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &minOrder, &maxDiscount, &c.UsageLimit,
		&c.PerUserLimit, &c.UsageCount, &c.ValidFrom, &c.ValidTo, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Coupon{}, err
	}
	if minOrder.Valid {
		c.MinOrderAmount = &minOrder.Decimal
	}
	if maxDiscount.Valid {
		c.MaxDiscountAmount = &maxDiscount.Decimal
	}
	return c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r reader) getCoupon(ctx context.Context, query, key string) (domain.Coupon, error) {
	c, err := scanCoupon(r.q.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Coupon{}, notFound("coupon", key)
	}
	return c, mapErr(err)
}

func (r reader) GetCoupon(ctx context.Context, id string) (domain.Coupon, error) {
	return r.getCoupon(ctx, `SELECT `+couponCols+` FROM coupons WHERE id=$1`, id)
}

func (r reader) GetCouponByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return r.getCoupon(ctx, `SELECT `+couponCols+` FROM coupons WHERE upper(code)=upper($1)`, code)
}

func (r reader) CountCouponUsages(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id=$1 AND user_id=$2`, couponID, userID).Scan(&n)
	return n, mapErr(err)
}

func (r reader) ListCouponUsages(ctx context.Context, couponID string) ([]domain.CouponUsage, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, coupon_id, user_id, order_id, discount_amount, used_at
		FROM coupon_usages WHERE coupon_id=$1 ORDER BY used_at`, couponID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.CouponUsage
	for rows.Next() {
		var u domain.CouponUsage
		if err := rows.Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.UsedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, mapErr(rows.Err())
}

func (r reader) ListCoupons(ctx context.Context, page domain.Page) ([]domain.Coupon, error) {
	page = page.Normalize()
	rows, err := r.q.Query(ctx, `
		SELECT `+couponCols+` FROM coupons
		ORDER BY created_at DESC, code
		LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) InsertCoupon(ctx context.Context, c domain.Coupon) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO coupons(id, code, type, value, min_order_amount, max_discount_amount, usage_limit,
			per_user_limit, usage_count, valid_from, valid_to, status, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.Code, string(c.Type), c.Value, nullDecimal(c.MinOrderAmount), nullDecimal(c.MaxDiscountAmount), c.UsageLimit,
		c.PerUserLimit, c.UsageCount, c.ValidFrom, c.ValidTo, string(c.Status), c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err, "coupons_code_uq") {
		return fmt.Errorf("%s: %w", c.Code, domain.ErrDuplicateCoupon)
	}
	return mapErr(err)
}

func (t *tx) SetCouponStatus(ctx context.Context, id string, status domain.CouponStatus) error {
	ct, err := t.q.Exec(ctx, `UPDATE coupons SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("coupon", id)
	}
	return nil
}

func (t *tx) UpdateCoupon(ctx context.Context, c domain.Coupon) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE coupons
		SET type=$2, value=$3, min_order_amount=$4, max_discount_amount=$5, usage_limit=$6,
			per_user_limit=$7, valid_from=$8, valid_to=$9, updated_at=$10
		WHERE id=$1`,
		c.ID, string(c.Type), c.Value, nullDecimal(c.MinOrderAmount), nullDecimal(c.MaxDiscountAmount), c.UsageLimit,
		c.PerUserLimit, c.ValidFrom, c.ValidTo, c.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("coupon", c.ID)
	}
	return nil
}

func (t *tx) ExpireCoupons(ctx context.Context, now time.Time) (int, error) {
	ct, err := t.q.Exec(ctx, `
		UPDATE coupons SET status='EXPIRED', updated_at=$1
		WHERE status='ACTIVE' AND valid_to <= $1`, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(ct.RowsAffected()), nil
}

func (t *tx) LockCoupon(ctx context.Context, id string) (domain.Coupon, error) {
	return t.getCoupon(ctx, `SELECT `+couponCols+` FROM coupons WHERE id=$1 FOR UPDATE`, id)
}

func (t *tx) InsertCouponUsage(ctx context.Context, u domain.CouponUsage) (bool, error) {
	ct, err := t.q.Exec(ctx, `
		INSERT INTO coupon_usages(id, coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (coupon_id, order_id) DO NOTHING`,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.DiscountAmount, u.UsedAt)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}

// IncrementCouponUsage never reads then writes: the limit is checked by the
// UPDATE itself.
func (t *tx) IncrementCouponUsage(ctx context.Context, couponID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
		RETURNING usage_count`, couponID).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, mapErr(err)
	}
	c, err := t.GetCoupon(ctx, couponID)
	if err != nil {
		return 0, err
	}
	return c.UsageCount, domain.ErrUsageLimitExceeded
}
