package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ollama/ollama/api"
)

// httpClientWithNoTimeout mirrors the transport Ollama clients conventionally
// use: local inference can run far longer than a typical HTTP timeout, so
// only connection establishment is bounded.
func httpClientWithNoTimeout() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// stream drives api.Client.Chat for both the streaming and non-streaming
// paths (Ollama's callback shape is identical either way — the server just
// emits one Done=true response instead of many deltas — so StreamMessage
// and SendMessage share this implementation).
func (c *OllamaClient) stream(ctx context.Context, messages []Message, tools []ToolDef, streaming bool) (<-chan StreamEvent, error) {
	apiTools, err := convertToOllamaTools(tools)
	if err != nil {
		return nil, err
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: convertToOllamaMessages(messages),
		Tools:    apiTools,
		Stream:   &streaming,
	}

	ch := make(chan StreamEvent, 32)
	ready := make(chan error, 1)

	go func() {
		defer close(ch)
		started := false
		toolCallIdx := 0

		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if !started {
				started = true
				ready <- nil
			}

			if resp.Message.Content != "" {
				ch <- StreamEvent{TextDelta: resp.Message.Content}
			}

			for _, tc := range resp.Message.ToolCalls {
				argsBytes, marshalErr := json.Marshal(tc.Function.Arguments)
				args := string(argsBytes)
				if marshalErr != nil {
					ch <- StreamEvent{Err: fmt.Errorf("marshal ollama tool args: %w", marshalErr)}
					return marshalErr
				}
				delta := ToolCallDelta{
					// Ollama does not issue call ids; synthesize one so tool
					// results can be bound to their call. Each call gets its
					// own Index, which AccumulateStream groups deltas by.
					Index: toolCallIdx,
					ID:    fmt.Sprintf("call_%d", toolCallIdx),
				}
				delta.Function.Name = tc.Function.Name
				delta.Function.Arguments = args
				ch <- StreamEvent{ToolCallDeltas: []ToolCallDelta{delta}}
				toolCallIdx++
			}

			if resp.Done {
				usage := &Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				}
				finishReason := resp.DoneReason
				if finishReason == "" {
					finishReason = "stop"
				}
				ch <- StreamEvent{Done: true, Usage: usage, FinishReason: finishReason}
			}

			return nil
		})

		if err != nil {
			if !started {
				ready <- err
				return
			}
			ch <- StreamEvent{Err: err}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			return nil, fmt.Errorf("ollama chat: %w", err)
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
