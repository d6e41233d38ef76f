package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/changeonly/changeonly/internal/chunker"
	"github.com/changeonly/changeonly/internal/edgar"
	"github.com/changeonly/changeonly/internal/store"
)

// Directory resolves ticker symbols to registrant identity.
type Directory interface {
	LookupCompany(ctx context.Context, symbol string) (edgar.Company, error)
}

// Repository is the read/registration slice of the store the API serves.
type Repository interface {
	UpsertCompany(ctx context.Context, symbol, cik, name string) (store.Company, error)
	GetCompany(ctx context.Context, symbol string) (store.Company, error)
	ListCompanies(ctx context.Context) ([]store.Company, error)
	ListFilings(ctx context.Context, companyID uuid.UUID) ([]store.Filing, error)
	ListDiffs(ctx context.Context, companyID uuid.UUID) ([]store.DiffRecord, error)
	GetDiff(ctx context.Context, id uuid.UUID) (store.DiffRecord, error)
	LoadSchedules(ctx context.Context) ([]store.Schedule, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	db      Repository
	edgar   Directory
	started time.Time
}

func NewServer(port int, db Repository, dir Directory) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		db:      db,
		edgar:   dir,
		started: time.Now(),
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/companies", s.listCompanies)
		r.Post("/companies", s.registerCompany)
		r.Get("/companies/{symbol}/filings", s.companyFilings)
		r.Get("/companies/{symbol}/diffs", s.companyDiffs)
		r.Get("/diffs/{id}", s.getDiff)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	companies, err := s.db.ListCompanies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "changeonly",
		"status":    "ok",
		"companies": len(companies),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// companyView is a company plus its live poll schedules.
type companyView struct {
	store.Company
	Schedules []store.Schedule `json:"schedules,omitempty"`
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.db.ListCompanies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	schedules, err := s.db.LoadSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	byCompany := make(map[uuid.UUID][]store.Schedule)
	for _, sc := range schedules {
		byCompany[sc.CompanyID] = append(byCompany[sc.CompanyID], sc)
	}

	out := make([]companyView, 0, len(companies))
	for _, c := range companies {
		out = append(out, companyView{Company: c, Schedules: byCompany[c.ID]})
	}
	writeJSON(w, http.StatusOK, out)
}

// RegisterRequest is the POST /api/v1/companies payload.
type RegisterRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) registerCompany(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}

	resolved, err := s.edgar.LookupCompany(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("resolve %s: %w", symbol, err))
		return
	}
	company, err := s.db.UpsertCompany(r.Context(), resolved.Symbol, resolved.CIK, resolved.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("company registered", "symbol", company.Symbol, "cik", company.CIK)
	writeJSON(w, http.StatusCreated, company)
}

func (s *Server) companyFilings(w http.ResponseWriter, r *http.Request) {
	company, ok := s.lookup(w, r)
	if !ok {
		return
	}
	filings, err := s.db.ListFilings(r.Context(), company.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if form := r.URL.Query().Get("form"); form != "" {
		ft, ok := chunker.ParseFormType(form)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported form type %q", form))
			return
		}
		kept := filings[:0]
		for _, f := range filings {
			if f.FormType == ft {
				kept = append(kept, f)
			}
		}
		filings = kept
	}
	if filings == nil {
		filings = []store.Filing{}
	}
	writeJSON(w, http.StatusOK, filings)
}

func (s *Server) companyDiffs(w http.ResponseWriter, r *http.Request) {
	company, ok := s.lookup(w, r)
	if !ok {
		return
	}
	diffs, err := s.db.ListDiffs(r.Context(), company.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if diffs == nil {
		diffs = []store.DiffRecord{}
	}
	writeJSON(w, http.StatusOK, diffs)
}

func (s *Server) getDiff(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid diff id: %w", err))
		return
	}
	rec, err := s.db.GetDiff(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (store.Company, bool) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	company, err := s.db.GetCompany(r.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown company %s", symbol))
		return store.Company{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return store.Company{}, false
	}
	return company, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
