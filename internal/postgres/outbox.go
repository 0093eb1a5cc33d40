package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

func (r reader) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var t domain.Template
	err := r.q.QueryRow(ctx, `
		SELECT id, name, type, subject, body_template, active
		FROM notification_templates WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.Type, &t.Subject, &t.BodyTemplate, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, fmt.Errorf("%s: %w", id, domain.ErrTemplateNotFound)
	}
	return t, mapErr(err)
}

const outboxCols = `id, type, recipient, template_id, payload, status, attempts, last_error, created_at, updated_at, sent_at, claimed_until`

func scanEntry(r rowScanner) (domain.OutboxEntry, error) {
	var e domain.OutboxEntry
	err := r.Scan(&e.ID, &e.Type, &e.Recipient, &e.TemplateID, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt, &e.SentAt, &e.ClaimedUntil)
	return e, err
}

func (r reader) GetOutboxEntry(ctx context.Context, id string) (domain.OutboxEntry, error) {
	e, err := scanEntry(r.q.QueryRow(ctx, `SELECT `+outboxCols+` FROM notification_outbox WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OutboxEntry{}, notFound("outbox entry", id)
	}
	return e, mapErr(err)
}

// ListPendingOutbox returns PENDING entries oldest first. limit <= 0 means all.
func (r reader) ListPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+outboxCols+` FROM notification_outbox
		WHERE status='PENDING'
		ORDER BY created_at, id
		LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) UpsertTemplate(ctx context.Context, tpl domain.Template) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO notification_templates(id, name, type, subject, body_template, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, type=EXCLUDED.type, subject=EXCLUDED.subject,
			body_template=EXCLUDED.body_template, active=EXCLUDED.active`,
		tpl.ID, tpl.Name, string(tpl.Type), tpl.Subject, tpl.BodyTemplate, tpl.Active)
	return mapErr(err)
}

func (t *tx) InsertOutbox(ctx context.Context, e domain.OutboxEntry) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO notification_outbox(id, type, recipient, template_id, payload, status, attempts, last_error, created_at, updated_at, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, string(e.Type), e.Recipient, e.TemplateID, string(e.Payload), string(e.Status), e.Attempts, e.LastError, e.CreatedAt, e.UpdatedAt, e.SentAt)
	return mapErr(err)
}

func (t *tx) UpdateOutbox(ctx context.Context, e domain.OutboxEntry) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE notification_outbox
		SET status=$2, attempts=$3, last_error=$4, updated_at=$5, sent_at=$6, claimed_until=NULL
		WHERE id=$1`,
		e.ID, string(e.Status), e.Attempts, e.LastError, e.UpdatedAt, e.SentAt)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return notFound("outbox entry", e.ID)
	}
	return nil
}

func (t *tx) ClaimOutbox(ctx context.Context, id string, now, until time.Time) (bool, error) {
	ct, err := t.q.Exec(ctx, `
		UPDATE notification_outbox SET claimed_until=$3
		WHERE id=$1 AND status='PENDING' AND (claimed_until IS NULL OR claimed_until <= $2)`,
		id, now, until)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}
