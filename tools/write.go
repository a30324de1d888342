package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type writeInput struct {
	Path    string          `json:"path" jsonschema:"required,description=File path to write"`
	Content json.RawMessage `json:"content" jsonschema:"required,description=Content to write to the file"`
}

// NeedsConfirmation is an error type that signals the agent should confirm with the user.
type NeedsConfirmation struct {
	Tool       string
	Path       string
	Preview    string // old content (empty for new files)
	NewContent string // new content (for diff display)
	Execute    func() (string, error)
}

func (e *NeedsConfirmation) Error() string {
	return fmt.Sprintf("%s requires confirmation for %s", e.Tool, e.Path)
}

// contentAsString accepts either a JSON string or an arbitrary JSON value.
// Models occasionally pass an object instead of a pre-serialized string; in
// that case the value is pretty-printed rather than rejected.
func contentAsString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("content is not valid JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize content: %w", err)
	}
	return string(pretty), nil
}

func (r *Registry) writeTool(ctx context.Context, input json.RawMessage) (string, error) {
	var params writeInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	content, err := contentAsString(params.Content)
	if err != nil {
		return "", err
	}

	absPath, err := ValidatePath(r.workDir, params.Path)
	if err != nil {
		return "", err
	}

	oldContent := ""
	if data, err := os.ReadFile(absPath); err == nil {
		oldContent = string(data)
	}

	return "", &NeedsConfirmation{
		Tool:       "write",
		Path:       params.Path,
		Preview:    oldContent,
		NewContent: content,
		Execute: func() (string, error) {
			dir := filepath.Dir(absPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("create directory: %w", err)
			}

			if err := AtomicWrite(absPath, []byte(content), 0644); err != nil {
				return "", fmt.Errorf("write file: %w", err)
			}

			return fmt.Sprintf("Successfully wrote %s (%d bytes)", params.Path, len(content)), nil
		},
	}
}
