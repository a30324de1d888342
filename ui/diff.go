package ui

import (
	"fmt"
	"strings"

	"github.com/navcli/nav/hashline"
)

// PrintDiff prints a colorized unified diff, computed by the same Myers
// engine the edit tool uses for the diff in its result summary.
func (t *Terminal) PrintDiff(path, oldContent, newContent string) {
	fmt.Println(t.c(Bold, fmt.Sprintf("--- %s", path)))
	fmt.Println(t.c(Bold, fmt.Sprintf("+++ %s", path)))

	ops, _ := hashline.Diff(oldContent, newContent)
	rendered := hashline.RenderUnified(ops)
	for _, line := range strings.Split(strings.TrimSuffix(rendered, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			fmt.Println(t.c(Cyan, line))
		case strings.HasPrefix(line, "+"):
			fmt.Println(t.c(Green, line))
		case strings.HasPrefix(line, "-"):
			fmt.Println(t.c(Red, line))
		default:
			fmt.Println(t.c(Gray, line))
		}
	}
}

// PrintFilePreview prints a preview of file contents for the write tool.
func (t *Terminal) PrintFilePreview(path, content string) {
	fmt.Println(t.c(Bold+Green, fmt.Sprintf("New file: %s", path)))
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		fmt.Println(t.c(Gray, fmt.Sprintf("  %3d │ ", i+1)) + t.c(Green, line))
	}
}

// ConfirmAction asks the user for y/n confirmation.
func (t *Terminal) ConfirmAction(prompt string) bool {
	fmt.Print(t.c(Bold+Yellow, prompt+" [y/n] "))
	var response string
	fmt.Scanln(&response)
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
