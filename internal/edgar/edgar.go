package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/changeonly/changeonly/internal/chunker"
)

const tickerCacheTTL = 24 * time.Hour

// Company is EDGAR's identity for one registrant.
type Company struct {
	Symbol string
	CIK    string // zero-padded to 10 digits
	Name   string
}

// FilingMeta is one row of a company's submissions index, already filtered
// to the supported form types.
type FilingMeta struct {
	CIK         string
	Symbol      string
	FormType    chunker.FormType
	FiledAt     time.Time
	Accession   string
	PrimaryDoc  string
	DocumentURL string // full-submission .txt under the archive
	IndexURL    string
}

// tickerEntry matches one row of company_tickers.json.
type tickerEntry struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// submissionsDoc matches the slice of data.sec.gov/submissions we read.
// EDGAR publishes parallel arrays, one value per filing.
type submissionsDoc struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// LookupCompany resolves a ticker symbol through the SEC ticker map,
// refreshing the in-memory map at most once per day.
func (c *Client) LookupCompany(ctx context.Context, symbol string) (Company, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Company{}, fmt.Errorf("lookup company: empty symbol")
	}

	c.tickerMu.Lock()
	defer c.tickerMu.Unlock()

	if c.tickers == nil || time.Since(c.tickersLoadedAt) > tickerCacheTTL {
		body, err := c.Get(ctx, c.wwwBase+"/files/company_tickers.json")
		if err != nil {
			return Company{}, fmt.Errorf("load ticker map: %w", err)
		}
		var raw map[string]tickerEntry
		if err := json.Unmarshal(body, &raw); err != nil {
			return Company{}, fmt.Errorf("parse ticker map: %w", err)
		}
		tickers := make(map[string]Company, len(raw))
		for _, e := range raw {
			sym := strings.ToUpper(strings.TrimSpace(e.Ticker))
			cik := strings.TrimSpace(e.CIK.String())
			if sym == "" || cik == "" {
				continue
			}
			tickers[sym] = Company{
				Symbol: sym,
				CIK:    padCIK(cik),
				Name:   strings.TrimSpace(e.Title),
			}
		}
		c.tickers = tickers
		c.tickersLoadedAt = time.Now()
	}

	company, ok := c.tickers[symbol]
	if !ok {
		return Company{}, fmt.Errorf("lookup company: unknown symbol %q", symbol)
	}
	return company, nil
}

// RecentFilings lists a company's most recent supported filings, oldest
// first, so callers naturally ingest them in chronological order.
func (c *Client) RecentFilings(ctx context.Context, company Company, limit int) ([]FilingMeta, error) {
	url := c.dataBase + "/submissions/CIK" + company.CIK + ".json"
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch submissions: %w", err)
	}

	var doc submissionsDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse submissions: %w", err)
	}

	recent := doc.Filings.Recent
	n := len(recent.Form)
	for _, l := range []int{len(recent.AccessionNumber), len(recent.FilingDate), len(recent.PrimaryDocument)} {
		if l < n {
			n = l
		}
	}

	var metas []FilingMeta
	for i := 0; i < n; i++ {
		form, ok := chunker.ParseFormType(strings.TrimSpace(recent.Form[i]))
		if !ok {
			continue
		}
		filed, err := time.Parse("2006-01-02", strings.TrimSpace(recent.FilingDate[i]))
		if err != nil {
			continue
		}
		acc := strings.TrimSpace(recent.AccessionNumber[i])
		if acc == "" {
			continue
		}
		metas = append(metas, FilingMeta{
			CIK:         company.CIK,
			Symbol:      company.Symbol,
			FormType:    form,
			FiledAt:     filed,
			Accession:   acc,
			PrimaryDoc:  strings.TrimSpace(recent.PrimaryDocument[i]),
			DocumentURL: c.archiveURL(company.CIK, acc, acc+".txt"),
			IndexURL:    c.archiveURL(company.CIK, acc, acc+"-index.html"),
		})
		if limit > 0 && len(metas) >= limit {
			break
		}
	}

	sort.SliceStable(metas, func(i, j int) bool { return metas[i].FiledAt.Before(metas[j].FiledAt) })
	return metas, nil
}

// FilingText downloads one filing's full-submission document and reduces it
// to plain text.
func (c *Client) FilingText(ctx context.Context, meta FilingMeta) (string, error) {
	body, err := c.Get(ctx, meta.DocumentURL)
	if err != nil {
		return "", fmt.Errorf("download filing %s: %w", meta.Accession, err)
	}
	return ExtractText(string(body)), nil
}

// archiveURL builds an EDGAR archive path. The directory segment uses the
// unpadded CIK and the accession number without dashes.
func (c *Client) archiveURL(cik, accession, file string) string {
	short := strings.TrimLeft(cik, "0")
	if short == "" {
		short = "0"
	}
	noDash := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.wwwBase, short, noDash, file)
}

func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}
