// Package history assembles the messages array sent to the LLM on every
// agent loop iteration, within a token budget, using a head-and-tail
// strategy that always keeps the most recent messages intact and truncates
// long tool results before anything else is dropped.
//
// Grounded on original_source/workers/codeforge/history.py's
// ConversationHistoryManager (estimate_tokens, truncate_tool_result,
// build_messages), re-expressed with internal/model's ConversationMessage/
// ContextEntry types and internal/observability's structured logger in
// place of the original's module logger.
package history

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

var titleCaser = cases.Title(language.English)

// charsPerToken is the rough token-estimate heuristic: one token per four
// characters. It's an estimate, not a tokenizer call, so history assembly
// never blocks on a model-specific tokenizer.
const charsPerToken = 4

// DefaultToolOutputMaxChars bounds an individual tool result's contribution
// to the conversation before head-and-tail truncation applies.
const DefaultToolOutputMaxChars = 10_000

// EstimateTokens approximates a string's token count.
func EstimateTokens(text string) int {
	if n := len(text) / charsPerToken; n > 1 {
		return n
	}
	return 1
}

// TruncateToolResult keeps the first and last half of text when it exceeds
// maxChars, noting how many characters were dropped in between.
func TruncateToolResult(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	half := maxChars / 2
	omitted := len(text) - 2*half
	return fmt.Sprintf("%s\n\n... (%d characters omitted) ...\n\n%s", text[:half], omitted, text[len(text)-half:])
}

// Config tunes history assembly for one run.
type Config struct {
	MaxContextTokens    int
	ToolOutputMaxChars  int
	MinRecentMessages   int
}

// DefaultConfig matches the original worker's defaults.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:   128_000,
		ToolOutputMaxChars: DefaultToolOutputMaxChars,
		MinRecentMessages:  20,
	}
}

// Manager builds the LLM-facing messages array for a run's agent loop.
type Manager struct {
	config Config
	logger *observability.Logger
}

// NewManager creates a history manager. A zero-value config falls back to
// DefaultConfig's values field by field.
func NewManager(config Config, logger *observability.Logger) *Manager {
	def := DefaultConfig()
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = def.MaxContextTokens
	}
	if config.ToolOutputMaxChars <= 0 {
		config.ToolOutputMaxChars = def.ToolOutputMaxChars
	}
	if config.MinRecentMessages <= 0 {
		config.MinRecentMessages = def.MinRecentMessages
	}
	return &Manager{config: config, logger: logger}
}

// Message is one entry of the OpenAI-format messages array sent to the LLM.
type Message struct {
	Role       model.MessageRole  `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
	ToolCalls  []model.ToolCallRef `json:"tool_calls,omitempty"`
}

// BuildMessages assembles the final messages list: the system prompt (with
// context entries injected) first, then as many of the oldest messages as
// the remaining budget allows, then the most recent MinRecentMessages
// messages unconditionally.
func (m *Manager) BuildMessages(ctx context.Context, systemPrompt string, conversation []model.ConversationMessage, contextEntries []model.ContextEntry) []Message {
	systemContent := m.buildSystemContent(systemPrompt, contextEntries)
	systemMsg := Message{Role: model.RoleSystem, Content: systemContent}
	systemTokens := EstimateTokens(systemContent)

	budget := m.config.MaxContextTokens - systemTokens
	if budget <= 0 {
		m.logger.Warn(ctx, "system prompt alone exceeds token budget", "system_tokens", systemTokens, "budget", m.config.MaxContextTokens)
		return []Message{systemMsg}
	}

	all := make([]Message, len(conversation))
	for i, msg := range conversation {
		all[i] = m.toMessage(msg)
	}

	minRecent := m.config.MinRecentMessages
	if minRecent > len(all) {
		minRecent = len(all)
	}
	tail := all[len(all)-minRecent:]
	head := all[:len(all)-minRecent]

	tailTokens := 0
	for _, msg := range tail {
		tailTokens += messageTokens(msg)
	}
	remaining := budget - tailTokens

	var included []Message
	for _, msg := range head {
		tokens := messageTokens(msg)
		if tokens > remaining {
			break
		}
		included = append(included, msg)
		remaining -= tokens
	}

	result := make([]Message, 0, 1+len(included)+len(tail))
	result = append(result, systemMsg)
	result = append(result, included...)
	result = append(result, tail...)

	total := systemTokens + tailTokens
	for _, msg := range included {
		total += messageTokens(msg)
	}
	m.logger.Debug(ctx, "history assembled", "messages", len(result), "tokens", total, "budget", m.config.MaxContextTokens)
	return result
}

func (m *Manager) buildSystemContent(basePrompt string, contextEntries []model.ContextEntry) string {
	if len(contextEntries) == 0 {
		return basePrompt
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	for _, entry := range contextEntries {
		if entry.Content == "" {
			continue
		}
		label := entry.Kind
		if label == "" {
			label = "context"
		}
		fmt.Fprintf(&b, "\n\n## %s\n%s", titleCaser.String(label), entry.Content)
	}
	return b.String()
}

func (m *Manager) toMessage(msg model.ConversationMessage) Message {
	content := msg.Content
	if msg.Role == model.RoleTool && content != "" {
		content = TruncateToolResult(content, m.config.ToolOutputMaxChars)
	}
	return Message{
		Role:       msg.Role,
		Content:    content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
		ToolCalls:  msg.ToolCalls,
	}
}

func messageTokens(msg Message) int {
	total := 0
	if msg.Content != "" {
		total += EstimateTokens(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		total += EstimateTokens(tc.Name)
		total += EstimateTokens(tc.Arguments)
	}
	if total == 0 {
		return 1
	}
	return total
}
