package chunker

// FormType identifies the SEC form category of a filing.
type FormType string

const (
	Form10K FormType = "10-K"
	Form10Q FormType = "10-Q"
	Form8K  FormType = "8-K"
)

// SupportedForms lists every form type the chunker has a catalogue for.
var SupportedForms = []FormType{Form10K, Form10Q, Form8K}

// ParseFormType maps a raw form string to a supported FormType.
func ParseFormType(s string) (FormType, bool) {
	switch FormType(s) {
	case Form10K, Form10Q, Form8K:
		return FormType(s), true
	}
	return "", false
}

// catalog10K is the ordered item sequence of an annual report.
var catalog10K = []string{
	"1", "1A", "1B", "2", "3", "4",
	"5", "6", "7", "7A", "8", "9", "9A", "9B",
	"10", "11", "12", "13", "14", "15",
}

// catalog10Q merges Part I and Part II item numbers into one ordered
// sequence. Part II re-uses low item numbers ("Item 1. Legal Proceedings"),
// which the dedup-by-label rule folds into the Part I section of the same
// number; 1A (Risk Factors) only exists in Part II and keeps its own slot.
var catalog10Q = []string{
	"1", "1A", "2", "3", "4", "5", "6",
}

// catalog8K covers the event-driven report's dotted item numbering.
var catalog8K = []string{
	"1.01", "1.02", "1.03", "1.04", "1.05",
	"2.01", "2.02", "2.03", "2.04", "2.05", "2.06",
	"3.01", "3.02", "3.03",
	"4.01", "4.02",
	"5.01", "5.02", "5.03", "5.04", "5.05", "5.06", "5.07", "5.08",
	"6.01", "6.02", "6.03", "6.04", "6.05",
	"7.01", "8.01", "9.01",
}

// Catalog returns the ordered item keys expected for a form type.
func Catalog(form FormType) []string {
	switch form {
	case Form10K:
		return catalog10K
	case Form10Q:
		return catalog10Q
	case Form8K:
		return catalog8K
	}
	return nil
}
