package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Company is tracked reference data: created on first discovery, never
// deleted.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	CIK       string    `json:"cik"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("store: not found")

// UpsertCompany registers a company by symbol, refreshing CIK and name on
// conflict, and returns the stored row either way.
func (s *Store) UpsertCompany(ctx context.Context, symbol, cik, name string) (Company, error) {
	var c Company
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, symbol, cik, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET cik = EXCLUDED.cik, name = EXCLUDED.name
		RETURNING id, symbol, cik, name, created_at`,
		uuid.New(), symbol, cik, name,
	).Scan(&c.ID, &c.Symbol, &c.CIK, &c.Name, &c.CreatedAt)
	if err != nil {
		return Company{}, fmt.Errorf("upsert company: %w", err)
	}
	return c, nil
}

// GetCompany looks a company up by symbol.
func (s *Store) GetCompany(ctx context.Context, symbol string) (Company, error) {
	var c Company
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, cik, name, created_at FROM companies WHERE symbol = $1`,
		symbol,
	).Scan(&c.ID, &c.Symbol, &c.CIK, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	if err != nil {
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// ListCompanies returns every tracked company ordered by symbol.
func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, cik, name, created_at FROM companies ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Symbol, &c.CIK, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
