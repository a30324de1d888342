package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/navcli/nav/llm"
	"github.com/navcli/nav/process"
	"github.com/navcli/nav/tools"
	"github.com/navcli/nav/ui"
)

// mockLLMClient implements llm.LLMClient for testing.
type mockLLMClient struct {
	responses []llm.Response
	callCount int32
}

func (m *mockLLMClient) SendMessage(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef) (*llm.Response, error) {
	idx := int(atomic.AddInt32(&m.callCount, 1)) - 1
	if idx >= len(m.responses) {
		text := "done"
		return &llm.Response{
			Message:      llm.TextMessage("assistant", text),
			FinishReason: "stop",
		}, nil
	}
	return &m.responses[idx], nil
}

func (m *mockLLMClient) StreamMessage(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	idx := int(atomic.AddInt32(&m.callCount, 1)) - 1
	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		if idx >= len(m.responses) {
			text := "done"
			ch <- llm.StreamEvent{TextDelta: text}
			ch <- llm.StreamEvent{FinishReason: "stop", Done: true}
			return
		}

		resp := m.responses[idx]
		if resp.Message.Content != nil {
			ch <- llm.StreamEvent{TextDelta: *resp.Message.Content}
		}

		for i, tc := range resp.Message.ToolCalls {
			ch <- llm.StreamEvent{
				ToolCallDeltas: []llm.ToolCallDelta{{
					Index: i,
					ID:    tc.ID,
					Type:  "function",
					Function: struct {
						Name      string `json:"name,omitempty"`
						Arguments string `json:"arguments,omitempty"`
					}{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}},
			}
		}

		ch <- llm.StreamEvent{FinishReason: resp.FinishReason, Done: true}
	}()
	return ch, nil
}

func newTestRegistry(dir string) *tools.Registry {
	return tools.NewRegistry(dir, process.NewManager(dir))
}

func TestAgentSingleTurn(t *testing.T) {
	text := "Hello! I can help you with your code."
	mock := &mockLLMClient{
		responses: []llm.Response{
			{
				Message:      llm.TextMessage("assistant", text),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "hello", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should have: system + user + assistant = 3 messages
	if ag.MessageCount() != 3 {
		t.Errorf("expected 3 messages, got %d", ag.MessageCount())
	}
}

func TestAgentToolUseLoop(t *testing.T) {
	// First response: LLM calls glob tool
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	mock := &mockLLMClient{
		responses: []llm.Response{
			{
				Message: llm.AssistantMessage(nil, []llm.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						Function: llm.FunctionCall{
							Name:      "glob",
							Arguments: string(globArgs),
						},
					},
				}),
				FinishReason: "tool_calls",
			},
			// Second response: final text
			{
				Message:      llm.TextMessage("assistant", "I found some Go files."),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "find go files", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system + user + assistant(tool_call) + tool_result + assistant(final) = 5
	if ag.MessageCount() != 5 {
		t.Errorf("expected 5 messages, got %d", ag.MessageCount())
	}
}

func TestAgentMaxIterations(t *testing.T) {
	// Create a mock that always returns tool calls (infinite loop)
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	resp := llm.Response{
		Message: llm.AssistantMessage(nil, []llm.ToolCall{
			{
				ID:   "call_1",
				Type: "function",
				Function: llm.FunctionCall{
					Name:      "glob",
					Arguments: string(globArgs),
				},
			},
		}),
		FinishReason: "tool_calls",
	}

	responses := make([]llm.Response, MaxIterationsPerTurn+5)
	for i := range responses {
		responses[i] = resp
		responses[i].Message.ToolCalls[0].ID = "call_" + string(rune('a'+i%26))
	}

	mock := &mockLLMClient{responses: responses}
	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "infinite loop", term)
	if err == nil {
		t.Fatal("expected max iterations error")
	}
	if got := err.Error(); got != "agent loop exceeded maximum iterations (50)" {
		t.Errorf("unexpected error: %s", got)
	}
}

func TestAgentConcurrentToolExecution(t *testing.T) {
	// LLM returns two read-only tool calls
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	grepArgs, _ := json.Marshal(map[string]string{"pattern": "func"})

	mock := &mockLLMClient{
		responses: []llm.Response{
			{
				Message: llm.AssistantMessage(nil, []llm.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						Function: llm.FunctionCall{
							Name:      "glob",
							Arguments: string(globArgs),
						},
					},
					{
						ID:   "call_2",
						Type: "function",
						Function: llm.FunctionCall{
							Name:      "grep",
							Arguments: string(grepArgs),
						},
					},
				}),
				FinishReason: "tool_calls",
			},
			{
				Message:      llm.TextMessage("assistant", "Found results."),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "search code", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system + user + assistant(2 tool calls) + 2 tool results + assistant(final) = 6
	if ag.MessageCount() != 6 {
		t.Errorf("expected 6 messages, got %d", ag.MessageCount())
	}
}

func TestAutoHandoverOverThreshold(t *testing.T) {
	// Use a very small context window so the handover threshold triggers easily
	summaryText := "Summary: user asked to find Go files."
	mock := &mockLLMClient{
		responses: []llm.Response{
			// First call: StreamMessage for this turn's reply (no tool calls)
			{
				Message:      llm.TextMessage("assistant", summaryText),
				FinishReason: "stop",
			},
			// Not consumed here: the handover is deferred to the next Run
			{
				Message:      llm.TextMessage("assistant", "Here is my response."),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	// contextWindow=500 tokens, system prompt alone is large enough to exceed 80% of 500
	ag := New(mock, registry, dir, 500)
	term := ui.NewTerminal()

	// Add enough messages to exceed the threshold
	longContent := strings.Repeat("This is a long message to fill tokens. ", 100)
	ag.messages = append(ag.messages, llm.TextMessage("user", "find go files"))
	ag.messages = append(ag.messages, llm.TextMessage("assistant", longContent))
	ag.messages = append(ag.messages, llm.TextMessage("user", "now what?"))

	err := ag.Run(context.Background(), "continue", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A turn with no tool calls that ends over the threshold only marks the
	// handover as pending; it fires at the start of the next Run. This run
	// leaves system + 3 seeded messages + user + assistant = 6 messages.
	if !ag.pendingAutoHandover {
		t.Error("expected auto-handover to be pending after an over-threshold turn")
	}
	if ag.MessageCount() > 6 {
		t.Errorf("expected message count <= 6 before the deferred handover, got %d", ag.MessageCount())
	}
}

func TestNoHandoverUnderThreshold(t *testing.T) {
	text := "Hello!"
	mock := &mockLLMClient{
		responses: []llm.Response{
			{
				Message:      llm.TextMessage("assistant", text),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	// Large context window — handover should not trigger
	ag := New(mock, registry, dir, 1000000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "hello", term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system + user + assistant = 3, no handover should have occurred
	if ag.MessageCount() != 3 {
		t.Errorf("expected 3 messages (no handover), got %d", ag.MessageCount())
	}

	// Only 1 LLM call should have been made (StreamMessage), not 2 (no SendMessage for a summary)
	if mock.callCount != 1 {
		t.Errorf("expected 1 LLM call (no handover), got %d", mock.callCount)
	}
}

func TestHandoverCommand(t *testing.T) {
	summaryText := "Summary of conversation."
	mock := &mockLLMClient{
		responses: []llm.Response{
			{
				Message:      llm.TextMessage("assistant", summaryText),
				FinishReason: "stop",
			},
			{
				Message:      llm.TextMessage("assistant", "Continuing."),
				FinishReason: "stop",
			},
		},
	}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	// Add some conversation history
	ag.messages = append(ag.messages, llm.TextMessage("user", "hello"))
	ag.messages = append(ag.messages, llm.TextMessage("assistant", "Hi there! How can I help?"))
	ag.messages = append(ag.messages, llm.TextMessage("user", "find bugs"))

	err := ag.Handover(context.Background(), term, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// /handover replays "continue" through Run, which appends its own
	// user+assistant pair on top of the reset system prompt.
	if ag.MessageCount() < 2 {
		t.Errorf("expected at least system + continuation messages, got %d", ag.MessageCount())
	}

	// Should have made exactly 2 LLM calls: summary, then the continuation.
	if mock.callCount != 2 {
		t.Errorf("expected 2 LLM calls for handover, got %d", mock.callCount)
	}
}

func TestHandoverEmptyConversation(t *testing.T) {
	mock := &mockLLMClient{}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	// Only system prompt, no conversation
	err := ag.Handover(context.Background(), term, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No LLM call should have been made
	if mock.callCount != 0 {
		t.Errorf("expected 0 LLM calls for empty conversation, got %d", mock.callCount)
	}

	// Still just the system prompt
	if ag.MessageCount() != 1 {
		t.Errorf("expected 1 message (system only), got %d", ag.MessageCount())
	}
}

func TestClear(t *testing.T) {
	mock := &mockLLMClient{}

	dir := t.TempDir()
	registry := newTestRegistry(dir)
	ag := New(mock, registry, dir, 128000)
	term := ui.NewTerminal()

	// Add conversation history
	ag.messages = append(ag.messages, llm.TextMessage("user", "hello"))
	ag.messages = append(ag.messages, llm.TextMessage("assistant", "Hi!"))
	ag.messages = append(ag.messages, llm.TextMessage("user", "do stuff"))

	if ag.MessageCount() != 4 {
		t.Fatalf("expected 4 messages before clear, got %d", ag.MessageCount())
	}

	ag.Clear(term)

	// Should be back to just system prompt
	if ag.MessageCount() != 1 {
		t.Errorf("expected 1 message after clear, got %d", ag.MessageCount())
	}

	// No LLM calls should have been made
	if mock.callCount != 0 {
		t.Errorf("expected 0 LLM calls for clear, got %d", mock.callCount)
	}
}
