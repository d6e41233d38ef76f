// Package chunker splits raw filing text into its labeled Item sections.
//
// Chunking is a pure function of (text, form type): no I/O, no shared state.
// Each form type has a known ordered catalogue of item numbers; headers are
// only accepted in non-decreasing catalogue order, which keeps references to
// other items inside body text (or a table of contents) from fragmenting the
// document.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// FullDocumentKey is the synthetic item key used when no recognizable
// headers are found and the whole document becomes one section.
const FullDocumentKey = "FULL"

// Item is one labeled section of a chunked filing.
type Item struct {
	Key      string // catalogue key, e.g. "1A" or "2.02"
	Label    string // display label, e.g. "Item 1A — Risk Factors"
	Position int    // 0-based index in document order
	Body     string // normalized section text, header line included
}

var (
	// "Item 7A." / "item 7a:" / "ITEM 7A — Market Risk"
	headerRe10KQ = regexp.MustCompile(`(?im)^[ \t]*item[ \t]+(\d{1,2})([a-z])?[ \t]*[.:\x{2013}\x{2014}-]?[ \t]*(.*)$`)
	// "Item 2.02. Results of Operations"
	headerRe8K = regexp.MustCompile(`(?im)^[ \t]*item[ \t]+(\d{1,2})\.(\d{2})[ \t]*[.:\x{2013}\x{2014}-]?[ \t]*(.*)$`)
)

type header struct {
	start int    // byte offset of the header line in the normalized text
	key   string // catalogue key
	label string
}

// Chunk splits raw filing text into ordered Items according to the form
// type's catalogue. It never fails on unstructured input: a document with no
// recognizable headers comes back as a single "Full Document" item. The only
// error is an unsupported form type.
func Chunk(raw string, form FormType) ([]Item, error) {
	cat := Catalog(form)
	if cat == nil {
		return nil, fmt.Errorf("chunk: unsupported form type %q", form)
	}

	text := Normalize(raw)
	headers := scanHeaders(text, form, cat)

	if len(headers) == 0 {
		return []Item{{
			Key:      FullDocumentKey,
			Label:    "Full Document",
			Position: 0,
			Body:     text,
		}}, nil
	}

	items := make([]Item, 0, len(headers))
	for i, h := range headers {
		start := h.start
		if i == 0 {
			start = 0 // fold any untagged lead-in into the first item
		}
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		items = append(items, Item{
			Key:      h.key,
			Label:    h.label,
			Position: i,
			Body:     strings.TrimSpace(text[start:end]),
		})
	}
	return items, nil
}

// scanHeaders finds header lines in document order, accepting only those
// whose catalogue position is strictly after the last accepted header.
// A repeated or out-of-order header is body text, not a boundary.
func scanHeaders(text string, form FormType, cat []string) []header {
	order := make(map[string]int, len(cat))
	for i, key := range cat {
		order[key] = i
	}

	re := headerRe10KQ
	if form == Form8K {
		re = headerRe8K
	}

	var out []header
	lastIdx := -1
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		key, label := parseHeader(text, form, m)
		idx, known := order[key]
		if !known || idx <= lastIdx {
			continue
		}
		lastIdx = idx
		out = append(out, header{start: m[0], key: key, label: label})
	}
	return out
}

func parseHeader(text string, form FormType, m []int) (key, label string) {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}

	if form == Form8K {
		key = group(1) + "." + group(2)
	} else {
		key = group(1) + strings.ToUpper(group(2))
	}

	label = "Item " + key
	if title := strings.TrimSpace(group(3)); title != "" {
		label += " — " + title
	}
	return key, label
}
