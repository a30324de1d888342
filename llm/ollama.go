package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaClient implements LLMClient against a local or remote Ollama server
// using the native api.Client.Chat streaming callback, rather than a
// hand-rolled HTTP client.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a new Ollama-native client. baseURL defaults to
// the local daemon (http://127.0.0.1:11434) when empty.
func NewOllamaClient(model, baseURL string) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	return &OllamaClient{
		client: api.NewClient(u, httpClientWithNoTimeout()),
		model:  model,
	}, nil
}

// convertToOllamaMessages translates the shared Message type into Ollama's
// dialect. Assistant tool calls carry api.ToolCall with arguments parsed
// back into a map, since Ollama represents them as structured objects
// rather than a JSON string. Ollama identifies a tool result by tool_name
// rather than tool_call_id, so a tool-role message is resolved by walking
// back to the nearest preceding assistant message and finding the ToolCall
// whose ID matches m.ToolCallID.
func convertToOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for i, m := range messages {
		om := api.Message{
			Role:    m.Role,
			Content: m.ContentString(),
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				var args api.ToolCallFunctionArguments
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				om.ToolCalls = append(om.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: args,
					},
				})
			}
		}
		if m.Role == "tool" {
			om.ToolName = resolveToolName(messages, i, m.ToolCallID)
		}
		out = append(out, om)
	}
	return out
}

// resolveToolName walks backward from index i to the nearest assistant
// message and returns the name of the ToolCall matching toolCallID.
func resolveToolName(messages []Message, i int, toolCallID string) string {
	for j := i - 1; j >= 0; j-- {
		if messages[j].Role != "assistant" {
			continue
		}
		for _, tc := range messages[j].ToolCalls {
			if tc.ID == toolCallID {
				return tc.Function.Name
			}
		}
		break
	}
	return ""
}

// convertToOllamaTools re-marshals the shared ToolDef (already an
// OpenAI-shaped {type, function: {name, description, parameters}} object)
// into api.Tool, whose JSON encoding is compatible.
func convertToOllamaTools(defs []ToolDef) ([]api.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("marshal tool defs: %w", err)
	}
	var tools []api.Tool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("convert tool defs: %w", err)
	}
	return tools, nil
}

// SendMessage issues a non-streaming chat request (used for handover summaries).
func (c *OllamaClient) SendMessage(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	events, err := c.stream(ctx, messages, tools, false)
	if err != nil {
		return nil, err
	}
	return AccumulateStream(events, nil)
}

// StreamMessage issues a streaming chat request.
func (c *OllamaClient) StreamMessage(ctx context.Context, messages []Message, tools []ToolDef) (<-chan StreamEvent, error) {
	return c.stream(ctx, messages, tools, true)
}
