package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/changeonly/changeonly/internal/diffengine"
)

// DiffRecord is one stored change report for a consecutive filing pair.
type DiffRecord struct {
	ID            uuid.UUID          `json:"id"`
	OlderFilingID uuid.UUID          `json:"older_filing_id"`
	NewerFilingID uuid.UUID          `json:"newer_filing_id"`
	Changed       bool               `json:"changed"`
	Report        *diffengine.Result `json:"report"`
	CreatedAt     time.Time          `json:"created_at"`
}

// GetDiff loads one diff report by id.
func (s *Store) GetDiff(ctx context.Context, id uuid.UUID) (DiffRecord, error) {
	var rec DiffRecord
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, older_filing_id, newer_filing_id, changed, report, created_at
		FROM diff_results WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.OlderFilingID, &rec.NewerFilingID, &rec.Changed, &raw, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DiffRecord{}, ErrNotFound
	}
	if err != nil {
		return DiffRecord{}, fmt.Errorf("get diff: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Report); err != nil {
		return DiffRecord{}, fmt.Errorf("decode diff report: %w", err)
	}
	return rec, nil
}

// ListDiffs returns a company's diff reports, newest pair first.
func (s *Store) ListDiffs(ctx context.Context, companyID uuid.UUID) ([]DiffRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.older_filing_id, d.newer_filing_id, d.changed, d.report, d.created_at
		FROM diff_results d
		JOIN filings f ON f.id = d.newer_filing_id
		WHERE f.company_id = $1
		ORDER BY f.filed_at DESC, d.created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", err)
	}
	defer rows.Close()

	var out []DiffRecord
	for rows.Next() {
		var rec DiffRecord
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.OlderFilingID, &rec.NewerFilingID, &rec.Changed, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diff: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Report); err != nil {
			return nil, fmt.Errorf("decode diff report: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
