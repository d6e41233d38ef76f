package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/changeonly/changeonly/internal/chunker"
	"github.com/changeonly/changeonly/internal/diffengine"
)

// Filing is one immutable discovered filing.
type Filing struct {
	ID          uuid.UUID        `json:"id"`
	CompanyID   uuid.UUID        `json:"company_id"`
	FormType    chunker.FormType `json:"form_type"`
	FiledAt     time.Time        `json:"filed_at"`
	Accession   string           `json:"accession"`
	DocumentURL string           `json:"document_url"`
	PrimaryDoc  string           `json:"primary_doc"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AppendFiling is everything the pipeline persists for one new filing: the
// filing row, its chunked version, and (when a predecessor exists) the diff
// against it.
type AppendFiling struct {
	CompanyID   uuid.UUID
	FormType    chunker.FormType
	FiledAt     time.Time
	Accession   string
	DocumentURL string
	PrimaryDoc  string

	Items       []chunker.Item
	RawBytes    int
	ContentHash string

	// OlderFilingID and Diff are set together when the filing has an
	// immediately preceding stored filing of the same form type.
	OlderFilingID uuid.UUID
	Diff          *diffengine.Result
}

// Append writes the filing, its version plus items, and its diff report in
// a single transaction. A duplicate accession is success-no-op: it returns
// (uuid.Nil, false, nil) and writes nothing, keeping stored history
// append-only and recomputation unnecessary.
func (s *Store) Append(ctx context.Context, f AppendFiling) (uuid.UUID, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	filingID := uuid.New()
	tag, err := tx.Exec(ctx, `
		INSERT INTO filings (id, company_id, form_type, filed_at, accession, document_url, primary_doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, accession) DO NOTHING`,
		filingID, f.CompanyID, f.FormType, f.FiledAt, f.Accession, f.DocumentURL, f.PrimaryDoc,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert filing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, nil // already stored, nothing to do
	}

	versionID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO filing_versions (id, filing_id, raw_bytes, content_hash)
		VALUES ($1, $2, $3, $4)`,
		versionID, filingID, f.RawBytes, f.ContentHash,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert version: %w", err)
	}

	for _, it := range f.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO items (id, version_id, position, item_key, label, body)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), versionID, it.Position, it.Key, it.Label, it.Body,
		)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("insert item %s: %w", it.Key, err)
		}
	}

	if f.Diff != nil {
		report, err := json.Marshal(f.Diff)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("marshal diff report: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO diff_results (id, older_filing_id, newer_filing_id, report, changed)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (older_filing_id, newer_filing_id) DO NOTHING`,
			uuid.New(), f.OlderFilingID, filingID, report, len(f.Diff.Changed()) > 0,
		)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("insert diff: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("commit: %w", err)
	}
	return filingID, true, nil
}

// HasFiling reports whether an accession is already stored for a company.
func (s *Store) HasFiling(ctx context.Context, companyID uuid.UUID, accession string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM filings WHERE company_id = $1 AND accession = $2)`,
		companyID, accession,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has filing: %w", err)
	}
	return exists, nil
}

// PreviousFiling returns the latest stored filing of the same company and
// form type filed on or before the given date, or ErrNotFound. This is the
// "older" side of a consecutive pair for a filing about to be stored: the
// caller's filing is not in the table yet, so an equal date means a same-day
// predecessor, with the most recently inserted row winning the tie.
func (s *Store) PreviousFiling(ctx context.Context, companyID uuid.UUID, form chunker.FormType, before time.Time) (Filing, error) {
	var f Filing
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, form_type, filed_at, accession, document_url, primary_doc, created_at
		FROM filings
		WHERE company_id = $1 AND form_type = $2 AND filed_at <= $3
		ORDER BY filed_at DESC, created_at DESC
		LIMIT 1`,
		companyID, form, before,
	).Scan(&f.ID, &f.CompanyID, &f.FormType, &f.FiledAt, &f.Accession, &f.DocumentURL, &f.PrimaryDoc, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Filing{}, ErrNotFound
	}
	if err != nil {
		return Filing{}, fmt.Errorf("previous filing: %w", err)
	}
	return f, nil
}

// FilingItems loads the chunked items of a filing's stored version in
// document order.
func (s *Store) FilingItems(ctx context.Context, filingID uuid.UUID) ([]chunker.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.position, i.item_key, i.label, i.body
		FROM items i
		JOIN filing_versions v ON v.id = i.version_id
		WHERE v.filing_id = $1
		ORDER BY i.position`,
		filingID,
	)
	if err != nil {
		return nil, fmt.Errorf("filing items: %w", err)
	}
	defer rows.Close()

	var out []chunker.Item
	for rows.Next() {
		var it chunker.Item
		if err := rows.Scan(&it.Position, &it.Key, &it.Label, &it.Body); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListFilings returns a company's stored filings, newest first.
func (s *Store) ListFilings(ctx context.Context, companyID uuid.UUID) ([]Filing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, form_type, filed_at, accession, document_url, primary_doc, created_at
		FROM filings
		WHERE company_id = $1
		ORDER BY filed_at DESC, created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	var out []Filing
	for rows.Next() {
		var f Filing
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.FormType, &f.FiledAt, &f.Accession, &f.DocumentURL, &f.PrimaryDoc, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
