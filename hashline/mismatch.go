package hashline

import (
	"fmt"
	"sort"
	"strings"
)

// MismatchContext is the number of unchanged neighbor lines shown around
// each stale anchor in a mismatch report.
const MismatchContext = 2

// RenderMismatchReport renders a combined report over every stale anchor in
// a rejected edit batch. Anchors are grouped by proximity: runs of
// overlapping context windows are merged into one block, separated blocks
// are joined with a "..." line. Each mismatched line is marked with ">>>".
func RenderMismatchReport(lines []string, mismatches []*HashMismatchError) string {
	if len(mismatches) == 0 {
		return ""
	}

	type window struct{ lo, hi int } // 0-based, inclusive
	stale := make(map[int]bool, len(mismatches))
	windows := make([]window, 0, len(mismatches))
	for _, m := range mismatches {
		idx := m.Anchor.Line - 1
		stale[idx] = true
		lo := idx - MismatchContext
		if lo < 0 {
			lo = 0
		}
		hi := idx + MismatchContext
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		windows = append(windows, window{lo, hi})
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].lo < windows[j].lo })

	merged := windows[:0:0]
	for _, w := range windows {
		if n := len(merged); n > 0 && w.lo <= merged[n-1].hi+1 {
			if w.hi > merged[n-1].hi {
				merged[n-1].hi = w.hi
			}
			continue
		}
		merged = append(merged, w)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "edit rejected: %d anchor(s) no longer match the current file\n", len(mismatches))
	for i, w := range merged {
		if i > 0 {
			b.WriteString("...\n")
		}
		for ln := w.lo; ln <= w.hi; ln++ {
			marker := "   "
			if stale[ln] {
				marker = ">>>"
			}
			fmt.Fprintf(&b, "%s %s\n", marker, FormatLine(ln+1, lines[ln]))
		}
	}
	b.WriteString("re-read the affected region and retry with fresh anchors")
	return b.String()
}
