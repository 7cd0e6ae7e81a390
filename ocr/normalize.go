package ocr

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize cleans raw engine output: line endings become "\n", form feeds
// (Tesseract's page terminator) are dropped, trailing spaces are trimmed
// per line, the text is put in Unicode NFC so decomposed Hangul jamo
// compose into syllables, and leading/trailing blank space is removed.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\f", "")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = norm.NFC.String(strings.Join(lines, "\n"))
	return strings.TrimSpace(s)
}
