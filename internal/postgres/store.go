// Package postgres implements store.Store on pgx. Counters are changed only
// by conditional UPDATE ... RETURNING statements, and order/coupon rows are
// held with SELECT ... FOR UPDATE for the length of a transition.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/storefront-core/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// reader carries the read queries shared by the pool and by transactions.
type reader struct{ q querier }

type Store struct {
	reader
	DB *pgxpool.Pool
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

func New(db *pgxpool.Pool) *Store {
	return &Store{reader: reader{q: db}, DB: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{reader: reader{q: pgTx}}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapErr(err)
	}
	return nil
}

type tx struct{ reader }
