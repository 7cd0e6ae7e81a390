package ocr

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrLanguageUnavailable is returned when a requested language pack is not
// installed for the engine.
var ErrLanguageUnavailable = errors.New("ocr: language pack not installed")

// ErrInvalidLanguages is returned by ParseLanguages for empty or malformed
// input.
var ErrInvalidLanguages = errors.New("ocr: invalid language list")

// Languages is an ordered set of Tesseract language codes recognised in a
// single pass. The first entry is the primary language.
type Languages []string

// DefaultLanguages is Korean and English together, in one pass.
var DefaultLanguages = Languages{"kor", "eng"}

var aliases = map[string]string{
	"ko": "kor", "kr": "kor", "korean": "kor", "hangul": "kor",
	"en": "eng", "english": "eng",
	"ja": "jpn", "japanese": "jpn",
	"zh": "chi_sim", "chinese": "chi_sim", "zh-cn": "chi_sim", "zh-tw": "chi_tra",
	"fr": "fra", "french": "fra",
	"de": "deu", "german": "deu",
	"es": "spa", "spanish": "spa",
}

// ParseLanguages accepts Tesseract syntax ("kor+eng") as well as comma or
// space separated lists and common aliases ("ko,en", "korean english").
// Duplicates are dropped, order is kept.
func ParseLanguages(s string) (Languages, error) {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '+' || r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidLanguages)
	}
	var out Languages
	for _, f := range fields {
		if code, ok := aliases[f]; ok {
			f = code
		}
		if !validCode(f) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLanguages, f)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// MustParseLanguages is ParseLanguages for constants; it panics on error.
func MustParseLanguages(s string) Languages {
	l, err := ParseLanguages(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the Tesseract -l argument, e.g. "kor+eng".
func (l Languages) String() string { return strings.Join(l, "+") }

// Validate reports every language of l missing from installed.
func (l Languages) Validate(installed []string) error {
	var missing []string
	for _, code := range l {
		if !slices.Contains(installed, code) {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrLanguageUnavailable, strings.Join(missing, ", "))
	}
	return nil
}

// MarshalText renders l as "kor+eng" in JSON and YAML.
func (l Languages) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText parses any syntax accepted by ParseLanguages.
func (l *Languages) UnmarshalText(b []byte) error {
	parsed, err := ParseLanguages(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func validCode(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
