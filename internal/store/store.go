// Package store is the Change Store: companies, filings, chunked versions,
// diff reports, and poll schedules, persisted in Postgres via pgx.
//
// Identity is idempotent: a filing is keyed by (company, accession number)
// and re-inserting an existing one is a no-op, so re-delivery anywhere in
// the pipeline is harmless. A FilingVersion and its DiffResult are written
// in one transaction; a diff never references a missing version.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema. Statements are idempotent so startup can run
// this unconditionally.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id         uuid PRIMARY KEY,
			symbol     text NOT NULL UNIQUE,
			cik        text NOT NULL,
			name       text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS filings (
			id           uuid PRIMARY KEY,
			company_id   uuid NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			form_type    text NOT NULL,
			filed_at     timestamptz NOT NULL,
			accession    text NOT NULL,
			document_url text NOT NULL DEFAULT '',
			primary_doc  text NOT NULL DEFAULT '',
			created_at   timestamptz NOT NULL DEFAULT now(),
			UNIQUE (company_id, accession)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_filings_company_form_date
			ON filings (company_id, form_type, filed_at)`,
		`CREATE TABLE IF NOT EXISTS filing_versions (
			id           uuid PRIMARY KEY,
			filing_id    uuid NOT NULL UNIQUE REFERENCES filings(id) ON DELETE CASCADE,
			raw_bytes    bigint NOT NULL,
			content_hash text NOT NULL,
			created_at   timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id         uuid PRIMARY KEY,
			version_id uuid NOT NULL REFERENCES filing_versions(id) ON DELETE CASCADE,
			position   int NOT NULL,
			item_key   text NOT NULL,
			label      text NOT NULL,
			body       text NOT NULL,
			UNIQUE (version_id, item_key),
			UNIQUE (version_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS diff_results (
			id              uuid PRIMARY KEY,
			older_filing_id uuid NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
			newer_filing_id uuid NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
			report          jsonb NOT NULL,
			changed         boolean NOT NULL,
			created_at      timestamptz NOT NULL DEFAULT now(),
			UNIQUE (older_filing_id, newer_filing_id)
		)`,
		`CREATE TABLE IF NOT EXISTS poll_schedules (
			company_id      uuid NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			form_type       text NOT NULL,
			next_poll_at    timestamptz NOT NULL,
			failure_count   int NOT NULL DEFAULT 0,
			backoff_seconds int NOT NULL DEFAULT 0,
			updated_at      timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (company_id, form_type)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
