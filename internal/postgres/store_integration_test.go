package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

// testStore runs against TEST_DATABASE_URL inside a throwaway schema.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 16
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	db, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, Migrate(ctx, db))
	return New(db)
}

func seedProduct(t *testing.T, s *Store, id string, stock int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{
			ID: id, Name: id, Price: decimal.NewFromInt(100), StockCount: stock,
			InStock: stock > 0, InitialStock: stock, CreatedAt: now, UpdatedAt: now,
		})
	}))
}

func TestPostgres_AdjustStockIsConditional(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProduct(t, s, "p1", 2)

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
	assert.Equal(t, 0, p.StockCount)
	assert.False(t, p.InStock)

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, "nope", -1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgres_ConcurrentDecrementsNeverOversell(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProduct(t, s, "hot", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, refused := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, s, 5, func(ctx context.Context, tx store.Tx) error {
				_, err := tx.AdjustStock(ctx, "hot", -1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, refused)
	p, err := s.GetProduct(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockCount)
}

func TestPostgres_CouponUsageLimitAndDuplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	limit := 1
	c := domain.Coupon{
		ID: uuid.NewString(), Code: "ONCE", Type: domain.CouponFixedAmount, Value: decimal.NewFromInt(5),
		UsageLimit: &limit, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour),
		Status: domain.CouponActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertCoupon(ctx, c) }))

	dup := c
	dup.ID, dup.Code = uuid.NewString(), "once"
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertCoupon(ctx, dup) })
	assert.ErrorIs(t, err, domain.ErrDuplicateCoupon)

	u := domain.CouponUsage{ID: uuid.NewString(), CouponID: c.ID, UserID: "u1", OrderID: "o1", DiscountAmount: decimal.NewFromInt(5), UsedAt: now}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		inserted, err := tx.InsertCouponUsage(ctx, u)
		require.NoError(t, err)
		assert.True(t, inserted)
		n, err := tx.IncrementCouponUsage(ctx, c.ID)
		assert.Equal(t, 1, n)
		return err
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		again := u
		again.ID = uuid.NewString()
		inserted, err := tx.InsertCouponUsage(ctx, again)
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	}))

	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.IncrementCouponUsage(ctx, c.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUsageLimitExceeded)

	got, err := s.GetCouponByCode(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
}

func TestPostgres_OutboxClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := domain.OutboxEntry{
		ID: uuid.NewString(), Type: domain.ChannelEmail, Recipient: "a@example.com", TemplateID: "order-confirmation",
		Payload: []byte(`{}`), Status: domain.OutboxPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.InsertOutbox(ctx, e) }))

	claim := func(at time.Time) bool {
		var ok bool
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			ok, err = tx.ClaimOutbox(ctx, e.ID, at, at.Add(time.Minute))
			return err
		}))
		return ok
	}
	assert.True(t, claim(now))
	assert.False(t, claim(now.Add(30*time.Second)), "live claim")
	assert.True(t, claim(now.Add(2*time.Minute)), "expired claim")

	e.Status, e.Attempts, e.UpdatedAt = domain.OutboxSent, 1, now
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.UpdateOutbox(ctx, e) }))
	stored, err := s.GetOutboxEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ClaimedUntil)
	assert.False(t, claim(now.Add(time.Hour)), "sent entries cannot be claimed")
	assert.Equal(t, domain.OutboxSent, stored.Status)
}
