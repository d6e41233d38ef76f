package edgar

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style.*?>.*?</style>`)
	tagRe    = regexp.MustCompile(`(?is)<[^>]+>`)
	entityRe = regexp.MustCompile(`&(nbsp|amp|lt|gt|quot|#160|#38);`)
)

var entities = map[string]string{
	"nbsp": " ", "#160": " ",
	"amp": "&", "#38": "&",
	"lt": "<", "gt": ">", "quot": `"`,
}

// ExtractText strips markup from a full-submission filing document, leaving
// plain text suitable for chunking. Filing .txt submissions wrap HTML, exhibit
// and XBRL segments; everything tag-shaped goes, text content stays.
func ExtractText(raw string) string {
	raw = strings.ReplaceAll(raw, "\x00", " ")
	raw = scriptRe.ReplaceAllString(raw, " ")
	raw = styleRe.ReplaceAllString(raw, " ")
	raw = tagRe.ReplaceAllString(raw, " ")
	raw = entityRe.ReplaceAllStringFunc(raw, func(m string) string {
		return entities[strings.Trim(m, "&;")]
	})
	return collapse(raw)
}

var (
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
	spaceEOLRe   = regexp.MustCompile(`[ \t]+\n`)
	multiLineRe  = regexp.MustCompile(`\n{3,}`)
)

func collapse(s string) string {
	s = spaceEOLRe.ReplaceAllString(s, "\n")
	s = multiLineRe.ReplaceAllString(s, "\n\n")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
