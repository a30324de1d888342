package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/navcli/nav/hashline"
)

type editInput struct {
	Path  string            `json:"path" jsonschema:"required,description=File path to edit"`
	Edits []json.RawMessage `json:"edits" jsonschema:"required,description=Edit operations to apply, validated against the file's current line hashes"`
}

// rawEdit captures both the flat ({"type":"set_line",...}) and nested
// ({"set_line":{...}}) edit shapes a model may emit.
type rawEdit struct {
	Type string `json:"type"`

	AnchorRef string `json:"anchor"`
	StartRef  string `json:"start_anchor"`
	EndRef    string `json:"end_anchor"`
	NewText   string `json:"new_text"`
	Text      string `json:"text"`

	SetLine      *rawEditBody `json:"set_line"`
	ReplaceLines *rawEditBody `json:"replace_lines"`
	InsertAfter  *rawEditBody `json:"insert_after"`
}

type rawEditBody struct {
	AnchorRef string `json:"anchor"`
	StartRef  string `json:"start_anchor"`
	EndRef    string `json:"end_anchor"`
	NewText   string `json:"new_text"`
	Text      string `json:"text"`
}

// normalizeEdit accepts either shape and produces one hashline.Edit.
func normalizeEdit(raw json.RawMessage) (hashline.Edit, error) {
	var r rawEdit
	if err := json.Unmarshal(raw, &r); err != nil {
		return hashline.Edit{}, fmt.Errorf("malformed edit: %w", err)
	}

	switch {
	case r.SetLine != nil:
		return hashline.Edit{Kind: hashline.SetLine, AnchorRef: r.SetLine.AnchorRef, NewText: r.SetLine.NewText}, nil
	case r.ReplaceLines != nil:
		return hashline.Edit{Kind: hashline.ReplaceLines, StartRef: r.ReplaceLines.StartRef, EndRef: r.ReplaceLines.EndRef, NewText: r.ReplaceLines.NewText}, nil
	case r.InsertAfter != nil:
		return hashline.Edit{Kind: hashline.InsertAfter, AnchorRef: r.InsertAfter.AnchorRef, NewText: r.InsertAfter.Text}, nil
	}

	switch hashline.EditKind(r.Type) {
	case hashline.SetLine:
		return hashline.Edit{Kind: hashline.SetLine, AnchorRef: r.AnchorRef, NewText: r.NewText}, nil
	case hashline.ReplaceLines:
		return hashline.Edit{Kind: hashline.ReplaceLines, StartRef: r.StartRef, EndRef: r.EndRef, NewText: r.NewText}, nil
	case hashline.InsertAfter:
		return hashline.Edit{Kind: hashline.InsertAfter, AnchorRef: r.AnchorRef, NewText: r.Text}, nil
	}

	return hashline.Edit{}, fmt.Errorf("malformed edit: unrecognized shape %s", string(raw))
}

func (r *Registry) editTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[editInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if len(params.Edits) == 0 {
		return "", fmt.Errorf("edits is required")
	}

	absPath, err := ValidatePath(r.workDir, params.Path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	oldContent := string(data)

	edits := make([]hashline.Edit, len(params.Edits))
	for i, raw := range params.Edits {
		e, err := normalizeEdit(raw)
		if err != nil {
			return "", err
		}
		edits[i] = e
	}

	result, err := hashline.ApplyEdits(oldContent, edits)
	if err != nil {
		return "", err
	}

	return "", &NeedsConfirmation{
		Tool:       "edit",
		Path:       params.Path,
		Preview:    oldContent,
		NewContent: result.Content,
		Execute: func() (string, error) {
			if err := AtomicWrite(absPath, []byte(result.Content), 0644); err != nil {
				return "", fmt.Errorf("write file: %w", err)
			}
			return editSummary(params.Path, oldContent, result), nil
		},
	}
}

// editSummary renders the diff stats, a unified diff, and fresh hashlines
// around every changed region so the model can continue editing without a
// re-read.
func editSummary(path, oldContent string, result hashline.Result) string {
	ops, stats := hashline.Diff(oldContent, result.Content)

	var b strings.Builder
	fmt.Fprintf(&b, "Edited %s (+%d/-%d lines)\n\n", path, stats.Added, stats.Removed)
	b.WriteString(hashline.RenderUnified(ops))
	b.WriteString("\n")
	b.WriteString(freshHashlinesAroundChanges(ops))
	return b.String()
}

// freshHashlinesAroundChanges renders hashline display lines (with current
// hashes) for the regions of the new file touched by the edit, plus
// MismatchContext lines of surrounding context, so subsequent edits in the
// same turn can anchor against up-to-date hashes.
func freshHashlinesAroundChanges(ops []hashline.DiffOp) string {
	type window struct{ lo, hi int }
	var windows []window
	newLine := 0
	var newLines []string

	for _, op := range ops {
		switch op.Kind {
		case hashline.DiffEqual:
			newLine++
			newLines = append(newLines, op.Text)
		case hashline.DiffInsert:
			newLine++
			newLines = append(newLines, op.Text)
			lo := newLine - 1 - hashline.MismatchContext
			if lo < 0 {
				lo = 0
			}
			windows = append(windows, window{lo, newLine - 1})
		case hashline.DiffDelete:
			// deletions don't advance newLine or contribute a new-file line
		}
	}

	if len(windows) == 0 {
		return ""
	}

	merged := windows[:1]
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if w.lo <= last.hi+1 {
			if w.hi > last.hi {
				last.hi = w.hi
			}
			continue
		}
		merged = append(merged, w)
	}

	var b strings.Builder
	b.WriteString("Updated hashlines:\n")
	for i, w := range merged {
		hi := w.hi + hashline.MismatchContext
		if hi > len(newLines)-1 {
			hi = len(newLines) - 1
		}
		if i > 0 {
			b.WriteString("...\n")
		}
		for ln := w.lo; ln <= hi; ln++ {
			b.WriteString(hashline.FormatLine(ln+1, newLines[ln]))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
