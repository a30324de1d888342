package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/navcli/nav/hashline"
)

type readInput struct {
	Path   string `json:"path" jsonschema:"required,description=File path to read"`
	Offset int    `json:"offset" jsonschema:"description=First line to read (1-indexed, default: 1)"`
	Limit  int    `json:"limit" jsonschema:"description=Maximum number of lines to read (default and max: 2000)"`
}

const (
	maxReadLines = 2000
	maxReadBytes = 256 * 1024
)

func (r *Registry) readTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[readInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	absPath, err := ValidatePath(r.workDir, params.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory; use ls or glob to list its contents", params.Path)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	truncatedBytes := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncatedBytes = true
	}

	lines := hashline.SplitLines(string(data))
	if len(lines) == 0 {
		return "File is empty.", nil
	}

	offset := params.Offset
	if offset <= 0 {
		offset = 1
	}
	if offset > len(lines) {
		return "", fmt.Errorf("offset %d is beyond the file's %d lines", offset, len(lines))
	}

	limit := params.Limit
	if limit <= 0 || limit > maxReadLines {
		limit = maxReadLines
	}

	end := offset - 1 + limit
	if end > len(lines) {
		end = len(lines)
	}

	window := lines[offset-1 : end]
	out := hashline.Format(window, offset)

	remaining := len(lines) - end
	if remaining > 0 {
		out += fmt.Sprintf("\n[%d more lines. Use offset=%d to continue]", remaining, end+1)
	}
	if truncatedBytes {
		out += fmt.Sprintf("\n[file truncated at %d bytes]", maxReadBytes)
	}

	return out, nil
}
