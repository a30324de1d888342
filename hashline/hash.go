// Package hashline implements line-addressable file editing: every line of a
// file carries a short content hash, and edits refer to lines by
// (line-number, hash) anchors that are validated against the current file
// state before any write. Stale anchors fail closed instead of silently
// corrupting the file.
package hashline

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the two-lowercase-hex-digit content hash of a single line.
// It strips a trailing CR, then strips all whitespace code points (not just
// leading/trailing) before hashing, so "a  b", "ab", and " a\tb " all hash
// identically and CRLF/LF files are indistinguishable.
func Hash(line string) string {
	line = strings.TrimSuffix(line, "\r")
	stripped := stripWhitespace(line)
	sum := xxhash.Sum64String(stripped)
	return hex2(byte(sum % 256))
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

func hex2(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}
