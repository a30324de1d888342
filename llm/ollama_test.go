package llm

import (
	"encoding/json"
	"testing"
)

func TestConvertToOllamaMessages(t *testing.T) {
	content := "hello there"
	toolContent := "42"
	messages := []Message{
		TextMessage("system", "be helpful"),
		TextMessage("user", content),
		AssistantMessage(nil, []ToolCall{
			{
				ID:   "call_0",
				Type: "function",
				Function: FunctionCall{
					Name:      "calculator",
					Arguments: `{"a":1,"b":41}`,
				},
			},
		}),
		ToolResultMessage("call_0", toolContent),
	}

	out := convertToOllamaMessages(messages)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[1].Role != "user" || out[1].Content != content {
		t.Errorf("unexpected user message: %+v", out[1])
	}
	if len(out[2].ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(out[2].ToolCalls))
	}
	tc := out[2].ToolCalls[0]
	if tc.Function.Name != "calculator" {
		t.Errorf("expected function name calculator, got %q", tc.Function.Name)
	}
	if tc.Function.Arguments["a"] != float64(1) || tc.Function.Arguments["b"] != float64(41) {
		t.Errorf("unexpected arguments: %+v", tc.Function.Arguments)
	}
	if out[3].Role != "tool" || out[3].Content != toolContent {
		t.Errorf("unexpected tool result message: %+v", out[3])
	}
	if out[3].ToolName != "calculator" {
		t.Errorf("expected resolved tool name calculator, got %q", out[3].ToolName)
	}
}

func TestConvertToOllamaMessagesResolvesToolNameAcrossMultipleCalls(t *testing.T) {
	messages := []Message{
		AssistantMessage(nil, []ToolCall{
			{ID: "call_0", Type: "function", Function: FunctionCall{Name: "read_file", Arguments: `{}`}},
			{ID: "call_1", Type: "function", Function: FunctionCall{Name: "list_dir", Arguments: `{}`}},
		}),
		ToolResultMessage("call_0", "file contents"),
		ToolResultMessage("call_1", "dir listing"),
	}

	out := convertToOllamaMessages(messages)
	if out[1].ToolName != "read_file" {
		t.Errorf("expected read_file, got %q", out[1].ToolName)
	}
	if out[2].ToolName != "list_dir" {
		t.Errorf("expected list_dir, got %q", out[2].ToolName)
	}
}

func TestConvertToOllamaToolsEmpty(t *testing.T) {
	tools, err := convertToOllamaTools(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools != nil {
		t.Errorf("expected nil tools, got %+v", tools)
	}
}

func TestConvertToOllamaToolsRoundTrip(t *testing.T) {
	defs := []ToolDef{
		{
			Type: "function",
			Function: FunctionDef{
				Name:        "read_file",
				Description: "Reads a file from disk",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
			},
		},
	}

	tools, err := convertToOllamaTools(defs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Function.Name != "read_file" {
		t.Errorf("expected name read_file, got %q", tools[0].Function.Name)
	}
	if tools[0].Function.Description != "Reads a file from disk" {
		t.Errorf("unexpected description: %q", tools[0].Function.Description)
	}
}

func TestNewOllamaClientDefaultsBaseURL(t *testing.T) {
	client, err := NewOllamaClient("llama3.1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.model != "llama3.1" {
		t.Errorf("expected model llama3.1, got %q", client.model)
	}
}

func TestNewOllamaClientRejectsInvalidBaseURL(t *testing.T) {
	_, err := NewOllamaClient("llama3.1", "://not-a-url")
	if err == nil {
		t.Fatal("expected an error for an invalid base URL")
	}
}
