package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ariefcatur/storefront-core/internal/domain"
	"github.com/ariefcatur/storefront-core/internal/store"
)

const (
	DefaultMaxRetries      = 3
	DefaultBatchSize       = 100
	DefaultDispatchTimeout = 10 * time.Second
	DefaultInterval        = 60 * time.Second

	maxRetriesExceeded = "Max retries exceeded"

	// claimGrace covers the writes around a dispatch.
	claimGrace = 30 * time.Second
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Locker guards a pass across processes. ok=false means another process
// holds it. The returned context ends when the lease is lost.
type Locker interface {
	TryLock(ctx context.Context) (held context.Context, release func(), ok bool, err error)
}

type Config struct {
	MaxRetries      int
	BatchSize       int
	DispatchTimeout time.Duration
}

type Worker struct {
	store store.Store
	email EmailSender
	sms   SMSSender
	cfg   Config
	sem   *semaphore.Weighted

	Lock Locker // optional
	Now  func() time.Time
}

type Stats struct {
	Skipped   bool
	Processed int
	Sent      int
	Retrying  int
	Failed    int
	Contended int // claimed by another dispatcher
}

func NewWorker(st store.Store, email EmailSender, sms SMSSender, cfg Config) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	return &Worker{store: st, email: email, sms: sms, cfg: cfg, sem: semaphore.NewWeighted(1)}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Run drains the outbox with a fixed delay between passes until ctx ends.
// The next pass is scheduled only after the previous one returns.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	log.Printf("[outbox] worker started interval=%s max_retries=%d", interval, w.cfg.MaxRetries)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[outbox] worker stopped")
			return
		case <-timer.C:
		}
		st, err := w.RunOnce(ctx)
		if err != nil {
			log.Printf("[outbox] pass error: %v", err)
		} else if st.Processed > 0 {
			log.Printf("[outbox] pass processed=%d sent=%d retrying=%d failed=%d", st.Processed, st.Sent, st.Retrying, st.Failed)
		}
		timer.Reset(interval)
	}
}

// RunOnce performs one pass over PENDING entries, oldest first. Overlapping
// calls are skipped, not queued. Per-entry failures are recorded on the entry;
// only failing to list the batch is returned.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	if !w.sem.TryAcquire(1) {
		return Stats{Skipped: true}, nil
	}
	defer w.sem.Release(1)

	if w.Lock != nil {
		held, release, ok, err := w.Lock.TryLock(ctx)
		if err != nil {
			return Stats{Skipped: true}, fmt.Errorf("outbox lock: %w", err)
		}
		if !ok {
			return Stats{Skipped: true}, nil
		}
		defer release()
		ctx = held
	}

	entries, err := w.store.ListPendingOutbox(ctx, w.cfg.BatchSize)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !w.claim(ctx, e.ID) {
			st.Contended++
			continue
		}
		st.Processed++
		switch w.process(ctx, e) {
		case domain.OutboxSent:
			st.Sent++
		case domain.OutboxFailed:
			st.Failed++
		default:
			st.Retrying++
		}
	}
	return st, nil
}

// claim takes the entry for this pass. A claim outlives any single dispatch,
// so a second worker listing the same rows skips entries still in flight.
func (w *Worker) claim(ctx context.Context, id string) bool {
	now := w.now()
	until := now.Add(w.cfg.DispatchTimeout + claimGrace)
	var ok bool
	err := store.InTx(ctx, w.store, 0, func(ctx context.Context, tx store.Tx) error {
		var err error
		ok, err = tx.ClaimOutbox(ctx, id, now, until)
		return err
	})
	if err != nil {
		log.Printf("[outbox] id=%s claim: %v", id, err)
		return false
	}
	return ok
}

func (w *Worker) process(ctx context.Context, e domain.OutboxEntry) domain.OutboxStatus {
	now := w.now()
	if e.Attempts >= w.cfg.MaxRetries {
		e.Status = domain.OutboxFailed
		e.LastError = maxRetriesExceeded
		e.UpdatedAt = now
		w.save(ctx, e)
		log.Printf("[outbox] id=%s failed after %d attempts", e.ID, e.Attempts)
		return e.Status
	}

	err := w.deliver(ctx, e)
	e.Attempts++
	e.UpdatedAt = w.now()
	if err != nil {
		e.LastError = err.Error()
		log.Printf("[outbox] id=%s attempt=%d error: %v", e.ID, e.Attempts, err)
	} else {
		sentAt := e.UpdatedAt
		e.Status = domain.OutboxSent
		e.SentAt = &sentAt
	}
	w.save(ctx, e)
	return e.Status
}

// save never fails the pass. If the update is lost the entry stays PENDING
// and may be dispatched again once its claim runs out. A cancelled pass
// still records the outcome of a transport call that already happened.
func (w *Worker) save(ctx context.Context, e domain.OutboxEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := store.InTx(ctx, w.store, 0, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOutbox(ctx, e)
	})
	if err != nil {
		log.Printf("[outbox] id=%s save status=%s: %v", e.ID, e.Status, err)
	}
}

func (w *Worker) deliver(ctx context.Context, e domain.OutboxEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	tpl, err := w.store.GetTemplate(ctx, e.TemplateID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", e.TemplateID, domain.ErrTemplateNotFound)
	}
	if err != nil {
		return err
	}
	if !tpl.Active {
		return fmt.Errorf("%s: %w", e.TemplateID, domain.ErrTemplateInactive)
	}

	vars, err := decodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	subject := Render(tpl.Subject, vars)
	body := Render(tpl.BodyTemplate, vars)

	var send func(context.Context) error
	switch e.Type {
	case domain.ChannelEmail:
		if w.email == nil {
			return errors.New("no email transport configured")
		}
		send = func(ctx context.Context) error { return w.email.SendEmail(ctx, e.Recipient, subject, body) }
	case domain.ChannelSMS:
		if w.sms == nil {
			return errors.New("no sms transport configured")
		}
		send = func(ctx context.Context) error { return w.sms.SendSMS(ctx, e.Recipient, body) }
	default:
		return fmt.Errorf("unknown channel %q", e.Type)
	}
	return w.dispatch(ctx, send)
}

// dispatch bounds a transport call by DispatchTimeout even if the transport
// ignores its context.
func (w *Worker) dispatch(ctx context.Context, send func(context.Context) error) error {
	dctx, cancel := context.WithTimeout(ctx, w.cfg.DispatchTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("dispatch panic: %v", r)
			}
		}()
		done <- send(dctx)
	}()
	select {
	case err := <-done:
		return err
	case <-dctx.Done():
		return fmt.Errorf("dispatch timed out after %s: %w", w.cfg.DispatchTimeout, dctx.Err())
	}
}
