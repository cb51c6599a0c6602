// Package llmgateway implements agentloop.LLMClient over the
// OpenAI-compatible LLM gateway named in spec.md §6 (an internal
// LiteLLM-style proxy reached with a bearer master key, not a direct
// provider API), grounded on internal/memory/embeddings/openai's
// DefaultConfig+BaseURL-override pattern and the teacher's
// internal/agent/toolconv (not kept in this tree) and its
// struct-to-openai.Tool conversion idiom.
package llmgateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Strob0t/CodeForge-sub000/internal/agentloop"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// Config points the client at the gateway.
type Config struct {
	BaseURL   string
	MasterKey string
}

// Client implements agentloop.LLMClient against the gateway's chat
// completions endpoint.
type Client struct {
	client *openai.Client
}

var _ agentloop.LLMClient = (*Client)(nil)

// New builds a gateway client. The master key is sent as the OpenAI
// client's bearer token, which is how the gateway authenticates backend
// workers (spec.md §6).
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llmgateway: base URL is required")
	}
	oaCfg := openai.DefaultConfig(cfg.MasterKey)
	oaCfg.BaseURL = cfg.BaseURL
	return &Client{client: openai.NewClientWithConfig(oaCfg)}, nil
}

// ChatCompletionStream streams one completion, feeding each content delta
// to onChunk as it arrives and returning the aggregated response once the
// stream ends.
func (c *Client) ChatCompletionStream(ctx context.Context, req agentloop.ChatCompletionRequest, onChunk func(string)) (agentloop.ChatCompletionResponse, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return agentloop.ChatCompletionResponse{}, fmt.Errorf("llmgateway: create stream: %w", err)
	}
	defer stream.Close()

	var (
		content   string
		toolCalls []model.ToolCallRef
		respModel string
		tokensIn  int
		tokensOut int
	)
	pending := map[int]*openai.ToolCall{}
	order := []int{}

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return agentloop.ChatCompletionResponse{}, fmt.Errorf("llmgateway: stream recv: %w", err)
		}
		if chunk.Model != "" {
			respModel = chunk.Model
		}
		if chunk.Usage != nil {
			tokensIn = chunk.Usage.PromptTokens
			tokensOut = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := pending[idx]
			if !ok {
				tcCopy := tc
				pending[idx] = &tcCopy
				order = append(order, idx)
				continue
			}
			existing.Function.Arguments += tc.Function.Arguments
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
		}
	}

	for _, idx := range order {
		tc := pending[idx]
		toolCalls = append(toolCalls, model.ToolCallRef{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	// The gateway's streaming chat completions endpoint carries no per-call
	// cost field; cost accounting happens on the gateway side and is not
	// surfaced to this worker.
	return agentloop.ChatCompletionResponse{
		Content:   content,
		ToolCalls: toolCalls,
		Model:     respModel,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

func toOpenAIMessages(messages []model.ConversationMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []model.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}
