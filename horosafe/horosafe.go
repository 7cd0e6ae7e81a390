// Package horosafe provides the input-safety primitives of the upload path:
// bounded reads of untrusted bodies and filename sanitising for values that
// are echoed back to clients or written to logs.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxFilenameLen caps sanitised filenames, in bytes.
const MaxFilenameLen = 255

// ErrTooLarge is returned when a bounded read exceeds its limit.
var ErrTooLarge = errors.New("horosafe: input too large")

var strict = bluemonday.StrictPolicy()

// LimitedReadAll reads at most maxBytes from r. It returns an error wrapping
// ErrTooLarge if r holds more than maxBytes.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// SafeFilename reduces a client-supplied filename to its base name, strips
// any markup and control characters, and bounds its length. Returns "" when
// nothing printable is left.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strict.Sanitize(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if len(name) > MaxFilenameLen {
		name = truncateUTF8(name, MaxFilenameLen)
	}
	return name
}

// Tail returns at most the last n bytes of the trimmed s, cut on a rune
// boundary. Used to quote tool stderr in errors and logs.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !isRuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
