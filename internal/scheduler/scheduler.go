// Package scheduler drives the ingestion pipeline: it decides which
// (company, form type) pairs are due, runs fetch, chunk, diff, and store for
// each on a bounded worker pool, and emits a change event when a diff has
// any non-unchanged item.
//
// Per pair there is never more than one in-flight poll: a pair is marked
// busy before dispatch and released when its worker finishes, so a tick that
// fires mid-fetch cannot enqueue the pair again. Filings inside one poll are
// processed oldest first, which keeps every diff pair consecutive.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/changeonly/changeonly/internal/alerts"
	"github.com/changeonly/changeonly/internal/chunker"
	"github.com/changeonly/changeonly/internal/diffengine"
	"github.com/changeonly/changeonly/internal/edgar"
	"github.com/changeonly/changeonly/internal/store"
)

// Fetcher is the slice of the EDGAR client the scheduler needs.
type Fetcher interface {
	RecentFilings(ctx context.Context, company edgar.Company, limit int) ([]edgar.FilingMeta, error)
	FilingText(ctx context.Context, meta edgar.FilingMeta) (string, error)
}

// Store is the slice of the Change Store the scheduler needs.
type Store interface {
	ListCompanies(ctx context.Context) ([]store.Company, error)
	LoadSchedules(ctx context.Context) ([]store.Schedule, error)
	UpsertSchedule(ctx context.Context, sc store.Schedule) error
	HasFiling(ctx context.Context, companyID uuid.UUID, accession string) (bool, error)
	PreviousFiling(ctx context.Context, companyID uuid.UUID, form chunker.FormType, before time.Time) (store.Filing, error)
	FilingItems(ctx context.Context, filingID uuid.UUID) ([]chunker.Item, error)
	Append(ctx context.Context, f store.AppendFiling) (uuid.UUID, bool, error)
}

// Publisher delivers change events to the Alert Dispatcher collaborator.
type Publisher interface {
	PublishChange(evt alerts.ChangeEvent) error
}

// Config carries the scheduler's externally supplied settings.
type Config struct {
	PollInterval   time.Duration // base interval after a successful poll
	Tick           time.Duration // driver loop cadence
	BackoffBase    time.Duration // first retry delay after a failed poll
	BackoffCap     time.Duration // ceiling for the poll backoff
	Workers        int           // bounded pool size, independent of the rate limit
	FilingsPerPoll int           // how many recent filings to consider per poll
	PollTimeout    time.Duration // budget for one pair's full pipeline run
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 45 * time.Minute
	}
	if c.Tick <= 0 {
		c.Tick = 15 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Minute
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FilingsPerPoll <= 0 {
		c.FilingsPerPoll = 12
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Minute
	}
}

type pairKey struct {
	CompanyID uuid.UUID
	Form      chunker.FormType
}

type pairState struct {
	company      store.Company
	nextPollAt   time.Time
	failureCount int
	backoff      time.Duration
	inFlight     bool
}

// Scheduler owns all PollSchedule state. Pair state is only mutated by the
// worker currently holding that pair's in-flight mark, or by the driver loop
// between dispatches.
type Scheduler struct {
	cfg       Config
	store     Store
	fetcher   Fetcher
	publisher Publisher
	logger    *slog.Logger

	group *errgroup.Group

	mu    sync.Mutex
	pairs map[pairKey]*pairState

	now func() time.Time
}

func New(cfg Config, st Store, f Fetcher, pub Publisher, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	group := &errgroup.Group{}
	group.SetLimit(cfg.Workers)
	return &Scheduler{
		group:     group,
		cfg:       cfg,
		store:     st,
		fetcher:   f,
		publisher: pub,
		logger:    logger,
		pairs:     make(map[pairKey]*pairState),
		now:       time.Now,
	}
}

// Run ticks until the context ends. Dispatch never blocks the driver loop:
// when the worker pool is full, due pairs simply wait for a later tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.restoreSchedules(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"tick", s.cfg.Tick, "poll_interval", s.cfg.PollInterval, "workers", s.cfg.Workers)

	for {
		s.dispatchDue(ctx)
		select {
		case <-ctx.Done():
			s.group.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// restoreSchedules seeds in-memory pair state from persisted schedules so a
// restart does not reset backoff or make everything due at once.
func (s *Scheduler) restoreSchedules(ctx context.Context) error {
	persisted, err := s.store.LoadSchedules(ctx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	byKey := make(map[pairKey]store.Schedule, len(persisted))
	for _, sc := range persisted {
		byKey[pairKey{CompanyID: sc.CompanyID, Form: sc.FormType}] = sc
	}

	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return fmt.Errorf("restore companies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range companies {
		for _, form := range chunker.SupportedForms {
			key := pairKey{CompanyID: c.ID, Form: form}
			st := &pairState{company: c, nextPollAt: s.now()}
			if sc, ok := byKey[key]; ok {
				st.nextPollAt = sc.NextPollAt
				st.failureCount = sc.FailureCount
				st.backoff = sc.Backoff
			}
			s.pairs[key] = st
		}
	}
	return nil
}

// dispatchDue picks up newly registered companies, then hands every due
// pair to the pool. A pair whose previous poll is still running is skipped.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	if err := s.refreshCompanies(ctx); err != nil {
		s.logger.Error("company refresh failed", "error", err)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, st := range s.pairs {
		if st.inFlight || now.Before(st.nextPollAt) {
			continue
		}
		key, st := key, st
		st.inFlight = true
		started := s.group.TryGo(func() error {
			s.processPair(ctx, key, st)
			return nil
		})
		if !started {
			st.inFlight = false // pool full, retry on a later tick
		}
	}
}

// refreshCompanies makes sure every tracked company has pair state for each
// supported form type. New pairs are due immediately.
func (s *Scheduler) refreshCompanies(ctx context.Context) error {
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range companies {
		for _, form := range chunker.SupportedForms {
			key := pairKey{CompanyID: c.ID, Form: form}
			if _, ok := s.pairs[key]; !ok {
				s.pairs[key] = &pairState{company: c, nextPollAt: s.now()}
			}
		}
	}
	return nil
}

// processPair runs one poll for one pair and records the outcome. A failure
// anywhere in the pipeline becomes backoff state for this pair alone; other
// pairs are untouched.
func (s *Scheduler) processPair(ctx context.Context, key pairKey, st *pairState) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	err := s.pollOnce(pollCtx, st.company, key.Form)

	now := s.now()
	s.mu.Lock()
	if err != nil {
		st.failureCount++
		st.backoff = backoffFor(st.failureCount, s.cfg.BackoffBase, s.cfg.BackoffCap)
		st.nextPollAt = now.Add(st.backoff)
	} else {
		st.failureCount = 0
		st.backoff = 0
		st.nextPollAt = now.Add(s.cfg.PollInterval)
	}
	sc := store.Schedule{
		CompanyID:    key.CompanyID,
		FormType:     key.Form,
		NextPollAt:   st.nextPollAt,
		FailureCount: st.failureCount,
		Backoff:      st.backoff,
	}
	st.inFlight = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("poll failed",
			"symbol", st.company.Symbol, "form_type", key.Form,
			"failures", sc.FailureCount, "backoff", sc.Backoff, "error", err)
	}
	// The outcome must survive shutdown: the poll context is likely already
	// canceled when the last workers drain, so persist on a detached one.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelPersist()
	if err := s.store.UpsertSchedule(persistCtx, sc); err != nil {
		s.logger.Error("persist schedule failed",
			"symbol", st.company.Symbol, "form_type", key.Form, "error", err)
	}
}

// pollOnce fetches the pair's recent filings and ingests any that are not
// stored yet, oldest first.
func (s *Scheduler) pollOnce(ctx context.Context, company store.Company, form chunker.FormType) error {
	ec := edgar.Company{Symbol: company.Symbol, CIK: company.CIK, Name: company.Name}
	metas, err := s.fetcher.RecentFilings(ctx, ec, s.cfg.FilingsPerPoll)
	if err != nil {
		return fmt.Errorf("recent filings: %w", err)
	}

	sort.SliceStable(metas, func(i, j int) bool { return metas[i].FiledAt.Before(metas[j].FiledAt) })

	for _, meta := range metas {
		if meta.FormType != form {
			continue
		}
		known, err := s.store.HasFiling(ctx, company.ID, meta.Accession)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		if err := s.ingestFiling(ctx, company, meta); err != nil {
			return fmt.Errorf("ingest %s: %w", meta.Accession, err)
		}
	}
	return nil
}

// ingestFiling downloads, chunks, diffs against the immediately preceding
// stored filing, and appends everything in one store transaction.
func (s *Scheduler) ingestFiling(ctx context.Context, company store.Company, meta edgar.FilingMeta) error {
	text, err := s.fetcher.FilingText(ctx, meta)
	if err != nil {
		return err
	}

	items, err := chunker.Chunk(text, meta.FormType)
	if err != nil {
		return err
	}

	f := store.AppendFiling{
		CompanyID:   company.ID,
		FormType:    meta.FormType,
		FiledAt:     meta.FiledAt,
		Accession:   meta.Accession,
		DocumentURL: meta.DocumentURL,
		PrimaryDoc:  meta.PrimaryDoc,
		Items:       items,
		RawBytes:    len(text),
		ContentHash: chunker.Hash(chunker.Normalize(text)),
	}

	var report *diffengine.Result
	prev, err := s.store.PreviousFiling(ctx, company.ID, meta.FormType, meta.FiledAt)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// first stored filing of this pair, nothing to diff against
	case err != nil:
		return err
	default:
		prevItems, err := s.store.FilingItems(ctx, prev.ID)
		if err != nil {
			return err
		}
		report, err = diffengine.Diff(
			diffengine.Version{Accession: prev.Accession, FormType: prev.FormType, FiledAt: prev.FiledAt, Items: prevItems},
			diffengine.Version{Accession: meta.Accession, FormType: meta.FormType, FiledAt: meta.FiledAt, Items: items},
		)
		if err != nil {
			return err
		}
		f.OlderFilingID = prev.ID
		f.Diff = report
	}

	_, stored, err := s.store.Append(ctx, f)
	if err != nil {
		return err
	}
	if !stored {
		return nil // raced with another writer, already persisted
	}

	s.logger.Info("filing stored",
		"symbol", company.Symbol, "form_type", meta.FormType,
		"accession", meta.Accession, "items", len(items), "diffed", report != nil)

	if report == nil {
		return nil
	}
	changed := report.Changed()
	if len(changed) == 0 {
		return nil
	}

	labels := make([]string, 0, len(changed))
	for _, it := range changed {
		labels = append(labels, it.Label)
	}
	evt := alerts.ChangeEvent{
		Symbol:          company.Symbol,
		CompanyName:     company.Name,
		FormType:        meta.FormType,
		OlderAccession:  report.OlderAccession,
		NewerAccession:  report.NewerAccession,
		FiledAt:         meta.FiledAt,
		ChangedSections: labels,
	}
	if err := s.publisher.PublishChange(evt); err != nil {
		// The filing is stored; a lost event is the dispatcher's re-poll
		// problem, not a reason to re-ingest.
		s.logger.Error("publish change event failed",
			"symbol", company.Symbol, "accession", meta.Accession, "error", err)
	}
	return nil
}

// backoffFor doubles the base per consecutive failure, capped.
func backoffFor(failures int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
