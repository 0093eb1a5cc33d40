package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/storefront-core/internal/outbox"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the schema if needed and seeds the default templates
// without overwriting edited ones.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, t := range outbox.DefaultTemplates {
		_, err := db.Exec(ctx, `
			INSERT INTO notification_templates(id, name, type, subject, body_template, active)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Name, string(t.Type), t.Subject, t.BodyTemplate, t.Active)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	log.Printf("[postgres] schema ready, %d default templates", len(outbox.DefaultTemplates))
	return nil
}
