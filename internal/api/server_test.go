package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/changeonly/changeonly/internal/chunker"
	"github.com/changeonly/changeonly/internal/diffengine"
	"github.com/changeonly/changeonly/internal/edgar"
	"github.com/changeonly/changeonly/internal/store"
)

type fakeRepo struct {
	companies map[string]store.Company
	filings   map[uuid.UUID][]store.Filing
	diffs     map[uuid.UUID]store.DiffRecord
	schedules []store.Schedule
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		companies: make(map[string]store.Company),
		filings:   make(map[uuid.UUID][]store.Filing),
		diffs:     make(map[uuid.UUID]store.DiffRecord),
	}
}

func (f *fakeRepo) UpsertCompany(_ context.Context, symbol, cik, name string) (store.Company, error) {
	c, ok := f.companies[symbol]
	if !ok {
		c = store.Company{ID: uuid.New(), Symbol: symbol, CreatedAt: time.Now()}
	}
	c.CIK = cik
	c.Name = name
	f.companies[symbol] = c
	return c, nil
}

func (f *fakeRepo) GetCompany(_ context.Context, symbol string) (store.Company, error) {
	c, ok := f.companies[symbol]
	if !ok {
		return store.Company{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCompanies(_ context.Context) ([]store.Company, error) {
	var out []store.Company
	for _, c := range f.companies {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) ListFilings(_ context.Context, companyID uuid.UUID) ([]store.Filing, error) {
	return f.filings[companyID], nil
}

func (f *fakeRepo) ListDiffs(_ context.Context, companyID uuid.UUID) ([]store.DiffRecord, error) {
	var out []store.DiffRecord
	for _, d := range f.diffs {
		for _, fl := range f.filings[companyID] {
			if fl.ID == d.NewerFilingID {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) GetDiff(_ context.Context, id uuid.UUID) (store.DiffRecord, error) {
	d, ok := f.diffs[id]
	if !ok {
		return store.DiffRecord{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) LoadSchedules(_ context.Context) ([]store.Schedule, error) {
	return f.schedules, nil
}

type fakeDirectory struct {
	known map[string]edgar.Company
}

func (f *fakeDirectory) LookupCompany(_ context.Context, symbol string) (edgar.Company, error) {
	c, ok := f.known[symbol]
	if !ok {
		return edgar.Company{}, fmt.Errorf("unknown symbol %q", symbol)
	}
	return c, nil
}

func newTestServer(repo *fakeRepo) *Server {
	dir := &fakeDirectory{known: map[string]edgar.Company{
		"ACME": {Symbol: "ACME", CIK: "0000320193", Name: "Acme Corp"},
	}}
	return NewServer(8760, repo, dir)
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(newFakeRepo())

	w := do(srv, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	repo := newFakeRepo()
	repo.companies["ACME"] = store.Company{ID: uuid.New(), Symbol: "ACME"}
	srv := newTestServer(repo)

	w := do(srv, "GET", "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "changeonly" {
		t.Errorf("expected service changeonly, got %v", body["service"])
	}
	if body["companies"] != float64(1) {
		t.Errorf("expected 1 company, got %v", body["companies"])
	}
}

func TestRegisterCompany(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	w := do(srv, "POST", "/api/v1/companies", `{"symbol":"acme"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var c store.Company
	if err := json.NewDecoder(w.Body).Decode(&c); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if c.Symbol != "ACME" || c.CIK != "0000320193" || c.Name != "Acme Corp" {
		t.Errorf("unexpected company: %+v", c)
	}
	if _, err := repo.GetCompany(context.Background(), "ACME"); err != nil {
		t.Errorf("company not persisted: %v", err)
	}
}

func TestRegisterCompany_UnknownSymbol(t *testing.T) {
	srv := newTestServer(newFakeRepo())

	w := do(srv, "POST", "/api/v1/companies", `{"symbol":"NOPE"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestRegisterCompany_BadPayload(t *testing.T) {
	srv := newTestServer(newFakeRepo())

	for _, body := range []string{`{`, `{"symbol":""}`, `{"symbol":"  "}`} {
		w := do(srv, "POST", "/api/v1/companies", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestListCompanies_IncludesSchedules(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.companies["ACME"] = store.Company{ID: id, Symbol: "ACME"}
	repo.schedules = []store.Schedule{
		{CompanyID: id, FormType: chunker.Form10K, FailureCount: 2, Backoff: 2 * time.Minute},
	}
	srv := newTestServer(repo)

	w := do(srv, "GET", "/api/v1/companies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []companyView
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 company, got %d", len(out))
	}
	if len(out[0].Schedules) != 1 || out[0].Schedules[0].FailureCount != 2 {
		t.Errorf("expected schedule with 2 failures, got %+v", out[0].Schedules)
	}
}

func TestCompanyFilings(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.companies["ACME"] = store.Company{ID: id, Symbol: "ACME"}
	repo.filings[id] = []store.Filing{
		{ID: uuid.New(), CompanyID: id, FormType: chunker.Form10K, Accession: "acc-1"},
		{ID: uuid.New(), CompanyID: id, FormType: chunker.Form8K, Accession: "acc-2"},
	}
	srv := newTestServer(repo)

	w := do(srv, "GET", "/api/v1/companies/acme/filings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var all []store.Filing
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 filings, got %d", len(all))
	}

	w = do(srv, "GET", "/api/v1/companies/ACME/filings?form=10-K", "")
	var filtered []store.Filing
	if err := json.NewDecoder(w.Body).Decode(&filtered); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Accession != "acc-1" {
		t.Errorf("expected only acc-1, got %+v", filtered)
	}

	w = do(srv, "GET", "/api/v1/companies/ACME/filings?form=13-F", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported form, got %d", w.Code)
	}

	w = do(srv, "GET", "/api/v1/companies/GHOST/filings", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown company, got %d", w.Code)
	}
}

func TestGetDiff(t *testing.T) {
	repo := newFakeRepo()
	diffID := uuid.New()
	repo.diffs[diffID] = store.DiffRecord{
		ID:      diffID,
		Changed: true,
		Report: &diffengine.Result{
			OlderAccession: "acc-1",
			NewerAccession: "acc-2",
			FormType:       chunker.Form10K,
		},
	}
	srv := newTestServer(repo)

	w := do(srv, "GET", "/api/v1/diffs/"+diffID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec store.DiffRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Report == nil || rec.Report.NewerAccession != "acc-2" {
		t.Errorf("unexpected report: %+v", rec.Report)
	}

	w = do(srv, "GET", "/api/v1/diffs/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = do(srv, "GET", "/api/v1/diffs/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(newFakeRepo())

	w := do(srv, "GET", "/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
