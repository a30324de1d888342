// Package session writes the per-run JSONL event log under .nav/logs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
}

// maxLoggedToolResult is the truncation limit for tool-result payloads
// written to the log, so a runaway command output doesn't blow up the file.
const maxLoggedToolResult = 5000

// Logger appends one JSON object per line to .nav/logs/<timestamp>.jsonl,
// each carrying {type, timestamp, data}.
type Logger struct {
	runID string
	file  *os.File
	zl    zerolog.Logger
}

// NewLogger opens a fresh log file for this run, minting a run id that
// distinguishes concurrent runs against the same working directory.
func NewLogger(workDir string) (*Logger, error) {
	dir := filepath.Join(workDir, ".nav", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	runID := uuid.NewString()
	name := fmt.Sprintf("%d.jsonl", time.Now().UnixNano())
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		runID: runID,
		file:  f,
		zl:    zerolog.New(f),
	}, nil
}

// RunID returns the id minted for this run.
func (l *Logger) RunID() string {
	return l.runID
}

// record writes one envelope line. payload is merged into data alongside
// run_id, so every line can be attributed to the run that produced it.
func (l *Logger) record(eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["run_id"] = l.runID
	l.zl.Log().Timestamp().Str("type", eventType).Interface("data", payload).Send()
}

// Config logs the resolved provider configuration at startup.
func (l *Logger) Config(cfg any) {
	raw, _ := json.Marshal(cfg)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	l.record("config", payload)
}

// SystemPrompt logs the system prompt text in effect for the run.
func (l *Logger) SystemPrompt(prompt string) {
	l.record("system_prompt", map[string]any{"text": prompt})
}

// UserMessage logs a user turn.
func (l *Logger) UserMessage(text string) {
	l.record("user_message", map[string]any{"text": text})
}

// AssistantMessage logs an assistant turn, including any tool calls it made.
func (l *Logger) AssistantMessage(msg any) {
	l.record("assistant_message", map[string]any{"message": msg})
}

// ToolCall logs a dispatched tool invocation.
func (l *Logger) ToolCall(name, arguments string) {
	l.record("tool_call", map[string]any{"name": name, "arguments": arguments})
}

// ToolResult logs a tool's result, truncated to maxLoggedToolResult chars.
func (l *Logger) ToolResult(result string) {
	if len(result) > maxLoggedToolResult {
		result = result[:maxLoggedToolResult] + "...[truncated]"
	}
	l.record("tool_result", map[string]any{"result": result})
}

// Error logs a non-fatal error surfaced during the run.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.record("error", map[string]any{"message": err.Error()})
}

// Usage logs token usage reported by the provider.
func (l *Logger) Usage(usage any) {
	raw, _ := json.Marshal(usage)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	l.record("usage", payload)
}

// Close releases the underlying log file.
func (l *Logger) Close() error {
	return l.file.Close()
}
