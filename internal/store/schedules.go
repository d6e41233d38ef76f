package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/changeonly/changeonly/internal/chunker"
)

// Schedule is per-(company, form type) poll state. Only the scheduler
// mutates it.
type Schedule struct {
	CompanyID    uuid.UUID        `json:"company_id"`
	FormType     chunker.FormType `json:"form_type"`
	NextPollAt   time.Time        `json:"next_poll_at"`
	FailureCount int              `json:"failure_count"`
	Backoff      time.Duration    `json:"backoff"`
}

// UpsertSchedule records the latest poll outcome for a pair.
func (s *Store) UpsertSchedule(ctx context.Context, sc Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poll_schedules (company_id, form_type, next_poll_at, failure_count, backoff_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (company_id, form_type) DO UPDATE SET
			next_poll_at = EXCLUDED.next_poll_at,
			failure_count = EXCLUDED.failure_count,
			backoff_seconds = EXCLUDED.backoff_seconds,
			updated_at = now()`,
		sc.CompanyID, sc.FormType, sc.NextPollAt, sc.FailureCount, int(sc.Backoff/time.Second),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// LoadSchedules returns all persisted poll schedules.
func (s *Store) LoadSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company_id, form_type, next_poll_at, failure_count, backoff_seconds
		FROM poll_schedules`)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sc Schedule
		var backoffSec int
		if err := rows.Scan(&sc.CompanyID, &sc.FormType, &sc.NextPollAt, &sc.FailureCount, &backoffSec); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		sc.Backoff = time.Duration(backoffSec) * time.Second
		out = append(out, sc)
	}
	return out, rows.Err()
}
