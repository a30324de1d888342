package hashline

import (
	"fmt"
	"strings"
)

// Line is one line of a file paired with its 1-based line number.
type Line struct {
	Number  int
	Content string
}

// SplitLines splits file content into lines, stripping CR so CRLF and LF
// content produce identical line slices. A trailing newline does not
// produce a phantom empty final line.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines reassembles lines into file content with a trailing newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatLine renders a single hashline display line: "L:HH|content".
func FormatLine(number int, content string) string {
	return fmt.Sprintf("%d:%s|%s", number, Hash(content), content)
}

// Format renders a sequence of lines as hashline display text, one display
// line per input line, numbered starting at startLine.
func Format(lines []string, startLine int) string {
	var b strings.Builder
	for i, line := range lines {
		b.WriteString(FormatLine(startLine+i, line))
		b.WriteByte('\n')
	}
	return b.String()
}
