package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	hspaceRe     = regexp.MustCompile(`[ \t]+`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
)

// Normalize canonicalizes line endings and whitespace so that two renderings
// of the same filing text hash and diff identically.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = hspaceRe.ReplaceAllString(s, " ")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Hash returns the hex SHA-256 of s. Applied to normalized text it gives a
// stable content identity for a FilingVersion.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
