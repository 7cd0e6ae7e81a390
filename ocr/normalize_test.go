package ocr

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"form feed only", "\f", ""},
		{"blank page", "  \n \n\f", ""},
		{"crlf", "Hello\r\nWorld\r\n\f", "Hello\nWorld"},
		{"trailing spaces", "Hello   \nWorld\t\n", "Hello\nWorld"},
		{"inner blank line kept", "Hello\n\nWorld", "Hello\n\nWorld"},
		// Conjoining jamo compose to precomposed syllables.
		{"hangul jamo", "\u1112\u1161\u11ab\u1100\u1173\u11af", "\ud55c\uae00"},
		{"already composed", "안녕하세요 Hello", "안녕하세요 Hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
