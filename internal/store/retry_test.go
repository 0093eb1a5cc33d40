package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/memstore"
	"github.com/ariefcatur/storefront-core/internal/store"
)

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := store.Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return domain.Transient(errors.New("lock timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := store.Retry(context.Background(), 2, func() error {
		calls++
		return domain.Transient(errors.New("deadlock"))
	})
	require.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 2, calls)
}

func TestRetry_OtherErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := store.Retry(context.Background(), 5, func() error {
		calls++
		return domain.ErrInsufficientStock
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.False(t, errors.Is(err, domain.ErrTransient))
	assert.Equal(t, 1, calls)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	boom := errors.New("boom")

	err := store.InTx(ctx, st, 3, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertProduct(ctx, domain.Product{ID: "p1", StockCount: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.GetProduct(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInTx_RetriesWholeUnit(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	st.FailNext("AdjustStock", domain.Transient(errors.New("lock timeout")))

	runs := 0
	err := store.InTx(ctx, st, 3, func(ctx context.Context, tx store.Tx) error {
		runs++
		if runs == 1 {
			if err := tx.InsertProduct(ctx, domain.Product{ID: "p1", StockCount: 5}); err != nil {
				return err
			}
		}
		_, err := tx.AdjustStock(ctx, "p1", -1)
		return err
	})
	// run pertama di-rollback, jadi produk p1 tidak ada di run kedua
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, runs)
}
