package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

const DefaultRetryAttempts = 3

// InTx runs fn in a unit of work and retries the whole unit while it fails
// with domain.ErrTransient, at most attempts times in total. Any other error
// is returned on the first occurrence.
func InTx(ctx context.Context, s Store, attempts int, fn func(ctx context.Context, tx Tx) error) error {
	return Retry(ctx, attempts, func() error {
		return s.WithTx(ctx, fn)
	})
}

func Retry(ctx context.Context, attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	try := 0
	err := backoff.Retry(func() error {
		try++
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}
		log.Printf("[store] transient error (try %d/%d): %v", try, attempts, err)
		return err
	}, b)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
