package docpipe

import (
	"strings"
	"unicode"
)

// Quality summarises how plausible the recognised text looks. Low ratios
// usually mean a wrong language pack or a scan below the useful DPI.
type Quality struct {
	CharsPerPage   float64 `json:"chars_per_page"`
	PrintableRatio float64 `json:"printable_ratio"`
	WordlikeRatio  float64 `json:"wordlike_ratio"`
	EmptyPages     int     `json:"empty_pages"`
}

// Suspicious reports whether the text probably needs a human look.
func (q Quality) Suspicious() bool {
	return q.PrintableRatio < 0.85 || (q.CharsPerPage > 0 && q.WordlikeRatio < 0.4)
}

func assess(pages []PageResult, text string) Quality {
	q := Quality{
		PrintableRatio: printableRatio(text),
		WordlikeRatio:  wordlikeRatio(text),
	}
	var chars int
	for _, p := range pages {
		if p.OK && strings.TrimSpace(p.Text) == "" {
			q.EmptyPages++
		}
		chars += len([]rune(p.Text))
	}
	if len(pages) > 0 {
		q.CharsPerPage = float64(chars) / float64(len(pages))
	}
	return q
}

// printableRatio is the share of printable runes. Private use area,
// U+FFFD and control characters other than whitespace count as garbage.
func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD:
		return true
	case r < 0x20 && r != '\n' && r != '\t':
		return true
	}
	return false
}

// wordlikeRatio is the share of tokens 2 to 15 runes long. Broken
// recognition tends to produce runs of single characters.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
