package diffengine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/changeonly/changeonly/internal/chunker"
)

func makeVersion(acc string, filed time.Time, bodies map[string]string, order []string) Version {
	v := Version{Accession: acc, FormType: chunker.Form10K, FiledAt: filed}
	for i, key := range order {
		v.Items = append(v.Items, chunker.Item{
			Key:      key,
			Label:    "Item " + key,
			Position: i,
			Body:     bodies[key],
		})
	}
	return v
}

var (
	t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestDiff_Reflexive(t *testing.T) {
	bodies := map[string]string{"1": "We sell widgets.", "1A": "Risks exist.", "7": "Revenue grew."}
	order := []string{"1", "1A", "7"}
	older := makeVersion("acc-1", t0, bodies, order)
	newer := makeVersion("acc-2", t1, bodies, order)

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected 3 item records, got %d", len(res.Items))
	}
	for _, it := range res.Items {
		if it.Status != StatusUnchanged {
			t.Errorf("item %s status = %s, want unchanged", it.Key, it.Status)
		}
		if it.Score != 0 {
			t.Errorf("item %s score = %f, want 0", it.Key, it.Score)
		}
		if len(it.Ops) != 0 {
			t.Errorf("item %s has %d ops, want empty script", it.Key, len(it.Ops))
		}
	}
	if got := res.Changed(); len(got) != 0 {
		t.Errorf("Changed() = %d items, want 0", len(got))
	}
}

func TestDiff_Deterministic(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{
		"1A": "Our risks include market volatility and supplier concentration.",
		"7":  "Results improved year over year.",
	}, []string{"1A", "7"})
	newer := makeVersion("acc-2", t1, map[string]string{
		"1A": "Our risks include market volatility, cyber attacks and supplier concentration.",
		"7":  "Results declined year over year.",
	}, []string{"1A", "7"})

	r1, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if string(b1) != string(b2) {
		t.Errorf("diff is not byte-identical across calls:\n%s\n%s", b1, b2)
	}
}

// Older "Our risks include X" vs newer "Our risks include X and Y" yields a
// modified item with exactly one insertion and a score strictly inside (0,1).
func TestDiff_InsertionScenario(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{"1A": "Our risks include X"}, []string{"1A"})
	newer := makeVersion("acc-2", t1, map[string]string{"1A": "Our risks include X and Y"}, []string{"1A"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	it := res.Items[0]
	if it.Status != StatusModified {
		t.Fatalf("status = %s, want modified", it.Status)
	}
	want := []Op{
		{Kind: OpEqual, Tokens: []string{"Our", "risks", "include", "X"}},
		{Kind: OpInsert, Tokens: []string{"and", "Y"}},
	}
	if !reflect.DeepEqual(it.Ops, want) {
		t.Errorf("ops = %+v, want %+v", it.Ops, want)
	}
	if it.Score <= 0 || it.Score >= 1 {
		t.Errorf("score = %f, want strictly between 0 and 1", it.Score)
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{
		"1": "Business as usual.",
		"3": "Pending litigation.",
	}, []string{"1", "3"})
	newer := makeVersion("acc-2", t1, map[string]string{
		"1":  "Business as usual.",
		"9B": "Other information disclosed.",
	}, []string{"1", "9B"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byKey := map[string]ItemDiff{}
	for _, it := range res.Items {
		byKey[it.Key] = it
	}

	added, ok := byKey["9B"]
	if !ok || added.Status != StatusAdded {
		t.Fatalf("item 9B = %+v, want added", added)
	}
	if added.Score != 1.0 {
		t.Errorf("added score = %f, want 1.0", added.Score)
	}
	if len(added.Ops) != 1 || added.Ops[0].Kind != OpInsert {
		t.Errorf("added ops = %+v, want single insertion", added.Ops)
	}

	removed, ok := byKey["3"]
	if !ok || removed.Status != StatusRemoved {
		t.Fatalf("item 3 = %+v, want removed", removed)
	}
	if removed.Score != 1.0 {
		t.Errorf("removed score = %f, want 1.0", removed.Score)
	}
	if len(removed.Ops) != 1 || removed.Ops[0].Kind != OpDelete {
		t.Errorf("removed ops = %+v, want single deletion", removed.Ops)
	}

	if got := len(res.Changed()); got != 2 {
		t.Errorf("Changed() = %d items, want 2", got)
	}
}

func TestDiff_EmptyBothSides(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{"4": ""}, []string{"4"})
	newer := makeVersion("acc-2", t1, map[string]string{"4": "   \n  "}, []string{"4"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].Status != StatusUnchanged || res.Items[0].Score != 0 {
		t.Errorf("empty bodies should be unchanged with score 0, got %+v", res.Items[0])
	}
}

func TestDiff_WhitespaceOnlyChangeIsUnchanged(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{"1": "We  sell\twidgets."}, []string{"1"})
	newer := makeVersion("acc-2", t1, map[string]string{"1": "We sell\nwidgets."}, []string{"1"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].Status != StatusUnchanged {
		t.Errorf("whitespace-only difference should be unchanged, got %s", res.Items[0].Status)
	}
}

// Same-day filings are a valid consecutive pair; the ingestion order decides
// which side is older.
func TestDiff_SameDayPairIsValid(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{"1": "First announcement."}, []string{"1"})
	newer := makeVersion("acc-2", t0, map[string]string{"1": "Second announcement."}, []string{"1"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("same-day pair rejected: %v", err)
	}
	if res.Items[0].Status != StatusModified {
		t.Errorf("status = %s, want modified", res.Items[0].Status)
	}
	if len(res.Changed()) != 1 {
		t.Errorf("Changed() = %d items, want 1", len(res.Changed()))
	}
}

func TestDiff_InvalidPairs(t *testing.T) {
	base := makeVersion("acc-1", t0, map[string]string{"1": "x"}, []string{"1"})

	t.Run("form type mismatch", func(t *testing.T) {
		other := makeVersion("acc-2", t1, map[string]string{"1": "x"}, []string{"1"})
		other.FormType = chunker.Form8K
		if _, err := Diff(base, other); err == nil {
			t.Fatal("expected PairError for differing form types")
		}
	})

	t.Run("date order", func(t *testing.T) {
		other := makeVersion("acc-2", t0.Add(-time.Hour), map[string]string{"1": "x"}, []string{"1"})
		_, err := Diff(base, other)
		pe, ok := err.(*PairError)
		if !ok {
			t.Fatalf("expected *PairError, got %v", err)
		}
		if pe.Older != "acc-1" || pe.Newer != "acc-2" {
			t.Errorf("PairError identifies wrong filings: %+v", pe)
		}
	})

	t.Run("same accession", func(t *testing.T) {
		dup := makeVersion("acc-1", t1, map[string]string{"1": "x"}, []string{"1"})
		if _, err := Diff(base, dup); err == nil {
			t.Fatal("expected PairError for identical accession")
		}
	})
}

func TestDiff_FullRewriteScoresOne(t *testing.T) {
	older := makeVersion("acc-1", t0, map[string]string{"8": "alpha beta gamma"}, []string{"8"})
	newer := makeVersion("acc-2", t1, map[string]string{"8": "delta epsilon zeta"}, []string{"8"})

	res, err := Diff(older, newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	it := res.Items[0]
	if it.Status != StatusModified {
		t.Fatalf("status = %s", it.Status)
	}
	if it.Score != 1.0 {
		t.Errorf("disjoint rewrite score = %f, want clamped 1.0", it.Score)
	}
}

// Replaying the script must reproduce both inputs exactly: equal plus delete
// runs rebuild the older side, equal plus insert runs the newer side.
func replayOps(ops []Op) (older, newer []string) {
	for _, op := range ops {
		switch op.Kind {
		case OpEqual:
			older = append(older, op.Tokens...)
			newer = append(newer, op.Tokens...)
		case OpDelete:
			older = append(older, op.Tokens...)
		case OpInsert:
			newer = append(newer, op.Tokens...)
		}
	}
	return older, newer
}

func TestEditScript_ReconstructsBothSides(t *testing.T) {
	cases := [][2][]string{
		{{"a", "b", "c"}, {"a", "b", "c"}},
		{{"a", "b", "c"}, {"x", "y", "z"}},
		{{"a", "b", "c", "d", "e"}, {"a", "c", "q", "e"}},
		{{"p", "q", "r", "s"}, {"q", "s", "p", "r"}},
		{nil, {"only", "new"}},
		{{"only", "old"}, nil},
	}
	for _, tc := range cases {
		ops := editScript(tc[0], tc[1])
		older, newer := replayOps(ops)
		if !reflect.DeepEqual(older, tc[0]) && !(older == nil && len(tc[0]) == 0) {
			t.Errorf("older side %v replays to %v", tc[0], older)
		}
		if !reflect.DeepEqual(newer, tc[1]) && !(newer == nil && len(tc[1]) == 0) {
			t.Errorf("newer side %v replays to %v", tc[1], newer)
		}
	}
}

// A large section with scattered replacements must produce the minimal
// number of changed tokens: one delete plus one insert per replaced word.
func TestEditScript_LargeSectionMinimalChanges(t *testing.T) {
	const n = 4000
	a := make([]string, n)
	b := make([]string, n)
	replaced := 0
	for i := 0; i < n; i++ {
		a[i] = fmt.Sprintf("w%d", i)
		if i%7 == 3 {
			b[i] = fmt.Sprintf("r%d", i)
			replaced++
		} else {
			b[i] = a[i]
		}
	}

	ops := editScript(a, b)
	older, newer := replayOps(ops)
	if !reflect.DeepEqual(older, a) || !reflect.DeepEqual(newer, b) {
		t.Fatal("script does not replay to its inputs")
	}

	changed := 0
	for _, op := range ops {
		if op.Kind != OpEqual {
			changed += len(op.Tokens)
		}
	}
	if want := 2 * replaced; changed != want {
		t.Errorf("changed tokens = %d, want minimal %d", changed, want)
	}
}

func TestEditScript_PrefersLeadingAndTrailingMatch(t *testing.T) {
	a := []string{"a", "b", "c", "d"}
	b := []string{"a", "x", "c", "d"}
	ops := editScript(a, b)
	want := []Op{
		{Kind: OpEqual, Tokens: []string{"a"}},
		{Kind: OpDelete, Tokens: []string{"b"}},
		{Kind: OpInsert, Tokens: []string{"x"}},
		{Kind: OpEqual, Tokens: []string{"c", "d"}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %+v, want %+v", ops, want)
	}
}
