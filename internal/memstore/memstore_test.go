package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

func intPtr(n int) *int { return &n }

func TestAdjustStock_IsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{ID: "p1", StockCount: 2})
	}))

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.AdjustStock(ctx, "p1", -3)
		assert.Equal(t, 2, n)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.AdjustStock(ctx, "p1", -2)
		assert.Equal(t, 0, n)
		return err
	}))
	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.InStock)
}

func TestCouponUsage_LimitAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := domain.Coupon{ID: "c1", Code: "ONCE", UsageLimit: intPtr(1), Status: domain.CouponActive}

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertCoupon(ctx, c))
		ok, err := tx.InsertCouponUsage(ctx, domain.CouponUsage{ID: "u1", CouponID: "c1", OrderID: "o1"})
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.InsertCouponUsage(ctx, domain.CouponUsage{ID: "u2", CouponID: "c1", OrderID: "o1"})
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := tx.IncrementCouponUsage(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = tx.IncrementCouponUsage(ctx, "c1")
		assert.ErrorIs(t, err, domain.ErrUsageLimitExceeded)
		return nil
	}))

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCoupon(ctx, domain.Coupon{ID: "c2", Code: "once"})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCoupon)
}

func TestPendingOutbox_OldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			st := domain.OutboxPending
			if id == "b" {
				st = domain.OutboxSent
			}
			if err := tx.InsertOutbox(ctx, domain.OutboxEntry{ID: id, Status: st, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := s.ListPendingOutbox(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	got, err = s.ListPendingOutbox(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFailNext_QueuesPerOperation(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.FailNext("InsertProduct", nil)
	s.FailNext("InsertProduct", boom)

	insert := func(id string) error {
		return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertProduct(ctx, domain.Product{ID: id})
		})
	}
	require.NoError(t, insert("p1"))
	require.ErrorIs(t, insert("p2"), boom)
	require.NoError(t, insert("p2"))
}

func TestWithTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().WithTx(ctx, func(context.Context, store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
