// Package diffengine aligns the Items of two consecutive filing versions and
// computes a deterministic per-Item change report.
//
// Bodies are normalized and tokenized into whitespace-delimited words; the
// edit script is a minimum-edit LCS alignment over those tokens. Word
// granularity was chosen so that a one-sentence amendment inside a large
// section scores well below 1.0.
package diffengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/changeonly/changeonly/internal/chunker"
)

// Status classifies how an Item changed between two versions.
type Status string

const (
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
)

// OpKind is the type of one edit operation.
type OpKind string

const (
	OpEqual  OpKind = "equal"
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op is one contiguous run of tokens in the edit script.
type Op struct {
	Kind   OpKind   `json:"kind"`
	Tokens []string `json:"tokens"`
}

// ItemDiff is the change record for a single Item.
type ItemDiff struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Status Status  `json:"status"`
	Ops    []Op    `json:"ops,omitempty"`
	Score  float64 `json:"score"`
}

// Version is the chunked content of one filing, as the engine needs it.
type Version struct {
	Accession string
	FormType  chunker.FormType
	FiledAt   time.Time
	Items     []chunker.Item
}

// Result is the full change report for a consecutive filing pair.
type Result struct {
	OlderAccession string           `json:"older_accession"`
	NewerAccession string           `json:"newer_accession"`
	FormType       chunker.FormType `json:"form_type"`
	Items          []ItemDiff       `json:"items"`
}

// Changed returns the records whose status is not unchanged.
func (r *Result) Changed() []ItemDiff {
	var out []ItemDiff
	for _, it := range r.Items {
		if it.Status != StatusUnchanged {
			out = append(out, it)
		}
	}
	return out
}

// PairError reports caller misuse: the two versions do not form a valid
// consecutive pair.
type PairError struct {
	Older  string
	Newer  string
	Reason string
}

func (e *PairError) Error() string {
	return fmt.Sprintf("invalid filing pair %s -> %s: %s", e.Older, e.Newer, e.Reason)
}

// Diff compares two versions of the same form type. Items are aligned by
// label key; a key only in newer is added, only in older is removed. The
// output is deterministic: the same inputs always produce the same report.
//
// Consecutiveness (no same-type filing between the two) is the caller's
// responsibility; Diff rejects what it can see locally. Equal filing dates
// are a valid pair: companies file several 8-Ks on one day, and the caller
// orders those by ingestion.
func Diff(older, newer Version) (*Result, error) {
	if older.FormType != newer.FormType {
		return nil, &PairError{Older: older.Accession, Newer: newer.Accession, Reason: "form types differ"}
	}
	if older.Accession == newer.Accession {
		return nil, &PairError{Older: older.Accession, Newer: newer.Accession, Reason: "same filing on both sides"}
	}
	if older.FiledAt.After(newer.FiledAt) {
		return nil, &PairError{Older: older.Accession, Newer: newer.Accession, Reason: "older filing filed after newer"}
	}

	olderByKey := make(map[string]chunker.Item, len(older.Items))
	for _, it := range older.Items {
		olderByKey[it.Key] = it
	}
	newerKeys := make(map[string]bool, len(newer.Items))

	res := &Result{
		OlderAccession: older.Accession,
		NewerAccession: newer.Accession,
		FormType:       older.FormType,
	}

	// Items of the newer version in document order, then removed items in
	// the older version's order.
	for _, it := range newer.Items {
		newerKeys[it.Key] = true
		prev, ok := olderByKey[it.Key]
		if !ok {
			res.Items = append(res.Items, ItemDiff{
				Key:    it.Key,
				Label:  it.Label,
				Status: StatusAdded,
				Ops:    []Op{{Kind: OpInsert, Tokens: tokenize(it.Body)}},
				Score:  1.0,
			})
			continue
		}
		res.Items = append(res.Items, compareItem(prev, it))
	}
	for _, it := range older.Items {
		if newerKeys[it.Key] {
			continue
		}
		res.Items = append(res.Items, ItemDiff{
			Key:    it.Key,
			Label:  it.Label,
			Status: StatusRemoved,
			Ops:    []Op{{Kind: OpDelete, Tokens: tokenize(it.Body)}},
			Score:  1.0,
		})
	}
	return res, nil
}

func compareItem(older, newer chunker.Item) ItemDiff {
	a := tokenize(older.Body)
	b := tokenize(newer.Body)

	d := ItemDiff{Key: newer.Key, Label: newer.Label}

	if equalTokens(a, b) {
		d.Status = StatusUnchanged
		d.Score = 0
		return d
	}

	ops := editScript(a, b)
	changed := 0
	for _, op := range ops {
		if op.Kind != OpEqual {
			changed += len(op.Tokens)
		}
	}
	d.Status = StatusModified
	d.Ops = ops
	d.Score = clamp01(float64(changed) / float64(max(len(a), len(b))))
	return d
}

func tokenize(body string) []string {
	return strings.Fields(chunker.Normalize(body))
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
