package hashline

import (
	"fmt"
	"strconv"
	"strings"
)

// Anchor is a (line, hash) pair used to reference a line for editing.
// Line is 1-based. Hash is 1-4 lowercase hex chars, compared
// case-insensitively against the file's current content.
type Anchor struct {
	Line int
	Hash string
}

func (a Anchor) String() string {
	return fmt.Sprintf("%d:%s", a.Line, a.Hash)
}

// ParseAnchor parses "L:HH" or the tolerant form "L:HH|anything", trimming
// surrounding whitespace. The hash portion must be 1-4 hex characters; the
// line number must be >= 1.
func ParseAnchor(ref string) (Anchor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Anchor{}, fmt.Errorf("empty anchor reference")
	}

	// Drop everything from the first "|" — the tolerant display-line form.
	if idx := strings.IndexByte(ref, '|'); idx >= 0 {
		ref = ref[:idx]
	}

	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return Anchor{}, fmt.Errorf("malformed anchor %q: expected L:HH", ref)
	}

	lineStr := strings.TrimSpace(parts[0])
	hashStr := strings.ToLower(strings.TrimSpace(parts[1]))

	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return Anchor{}, fmt.Errorf("malformed anchor %q: invalid line number", ref)
	}

	if len(hashStr) < 1 || len(hashStr) > 4 {
		return Anchor{}, fmt.Errorf("malformed anchor %q: hash must be 1-4 hex characters", ref)
	}
	for _, r := range hashStr {
		if !isHexDigit(r) {
			return Anchor{}, fmt.Errorf("malformed anchor %q: hash must be hex", ref)
		}
	}

	return Anchor{Line: line, Hash: hashStr}, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// Validate checks that the anchor points at an existing line in lines and
// that its hash matches that line's current content hash (case-insensitive).
func Validate(lines []string, a Anchor) error {
	if a.Line < 1 || a.Line > len(lines) {
		return fmt.Errorf("line %d is out of range (file has %d lines)", a.Line, len(lines))
	}
	actual := Hash(lines[a.Line-1])
	if !strings.EqualFold(actual, a.Hash) {
		return &HashMismatchError{Anchor: a, ActualHash: actual}
	}
	return nil
}

// HashMismatchError reports a single stale anchor.
type HashMismatchError struct {
	Anchor     Anchor
	ActualHash string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch at line %d: anchor says %s, file has %s", e.Anchor.Line, e.Anchor.Hash, e.ActualHash)
}
