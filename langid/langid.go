// Package langid reports the dominant language of recognised text, chosen
// among the languages the OCR pass was configured with.
package langid

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

var tesseractToLingua = map[string]lingua.Language{
	"kor":     lingua.Korean,
	"eng":     lingua.English,
	"jpn":     lingua.Japanese,
	"chi_sim": lingua.Chinese,
	"chi_tra": lingua.Chinese,
	"fra":     lingua.French,
	"deu":     lingua.German,
	"spa":     lingua.Spanish,
	"ita":     lingua.Italian,
	"por":     lingua.Portuguese,
	"rus":     lingua.Russian,
	"vie":     lingua.Vietnamese,
	"tha":     lingua.Thai,
}

// Detector caches one lingua detector per candidate set. Safe for
// concurrent use.
type Detector struct {
	mu        sync.Mutex
	detectors map[string]lingua.LanguageDetector
}

// New creates a Detector.
func New() *Detector {
	return &Detector{detectors: make(map[string]lingua.LanguageDetector)}
}

// Supported reports whether code has a detection model.
func Supported(code string) bool {
	_, ok := tesseractToLingua[code]
	return ok
}

// Detect returns the Tesseract code of the dominant language of text among
// candidates, or "" when text is blank or no candidate has a model. With a
// single usable candidate it is returned as is.
func (d *Detector) Detect(text string, candidates []string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	codes, langs := usable(candidates)
	switch len(codes) {
	case 0:
		return ""
	case 1:
		return codes[0]
	}

	detected, ok := d.detector(codes, langs).DetectLanguageOf(text)
	if !ok {
		return ""
	}
	for i, l := range langs {
		if l == detected {
			return codes[i]
		}
	}
	return ""
}

// usable maps candidates to lingua languages, keeping the first code for
// each distinct language.
func usable(candidates []string) ([]string, []lingua.Language) {
	var (
		codes []string
		langs []lingua.Language
	)
	seen := make(map[lingua.Language]bool)
	for _, c := range candidates {
		l, ok := tesseractToLingua[c]
		if !ok || seen[l] {
			continue
		}
		seen[l] = true
		codes = append(codes, c)
		langs = append(langs, l)
	}
	return codes, langs
}

func (d *Detector) detector(codes []string, langs []lingua.Language) lingua.LanguageDetector {
	key := strings.Join(codes, "+")
	d.mu.Lock()
	defer d.mu.Unlock()
	if det, ok := d.detectors[key]; ok {
		return det
	}
	det := lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).Build()
	d.detectors[key] = det
	return det
}
