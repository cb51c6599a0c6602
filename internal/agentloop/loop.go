// Package agentloop implements the LLM-tool-LLM iteration loop: call the
// model, execute any tool calls it requests (each individually approved by
// the control plane's policy engine over the run protocol), feed results
// back, and repeat until the model stops or a termination condition fires.
//
// Grounded on the teacher's internal/agent/loop.go (not kept in this tree)
// and its AgenticLoop/LoopState phase state
// machine (PhaseInit -> PhaseStream -> PhaseExecuteTools -> PhaseContinue ->
// PhaseComplete), re-targeted from session persistence to the Run Protocol
// Client, and on original_source/workers/codeforge/agent_loop.py for exact
// constants and control flow (including that the LLM call itself goes
// through the same permission-request path as a tool call).
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
	"github.com/Strob0t/CodeForge-sub000/internal/runprotocol"
)

// LoopPhase identifies the current stage of loop execution.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseContinue     LoopPhase = "continue"
	PhaseComplete     LoopPhase = "complete"
)

const (
	// DefaultMaxIterations bounds the LLM-tool round trips per run.
	DefaultMaxIterations = 50
	// DefaultTemperature is used when a run does not override it.
	DefaultTemperature = 0.2
	// DefaultModelFallback is used when neither the run nor the config names a model.
	DefaultModelFallback = "ollama/llama3.2"

	llmOutputReportChars    = 200
	toolCommandReportChars  = 200
	toolOutputReportChars   = 500
	toolCallsPlaceholder    = "(tool_calls)"
)

// Config tunes one loop execution.
type Config struct {
	MaxIterations int
	MaxCost       float64 // 0 = unlimited
	Model         string
	Temperature   float64
	Tags          []string
}

// DefaultConfig returns the loop defaults named above.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		Temperature:   DefaultTemperature,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	return cfg
}

// ChatCompletionRequest is what the loop sends to the LLM gateway.
type ChatCompletionRequest struct {
	Messages    []model.ConversationMessage
	Model       string
	Tools       []model.ToolDefinition
	Temperature float64
	Tags        []string
}

// ChatCompletionResponse is the gateway's reply for one iteration.
type ChatCompletionResponse struct {
	Content   string
	ToolCalls []model.ToolCallRef
	CostUSD   float64
	Model     string
	TokensIn  int
	TokensOut int
}

// LLMClient streams one chat completion, invoking onChunk for each piece of
// streamed assistant text.
type LLMClient interface {
	ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, onChunk func(string)) (ChatCompletionResponse, error)
}

// ToolExecutor runs a named tool against a workspace and exposes the tool
// catalog in LLM wire format.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, arguments map[string]any, workspacePath string) model.ToolResult
	OpenAITools() []model.ToolDefinition
}

// Result is the outcome of a full loop execution.
type Result struct {
	FinalContent  string
	ToolMessages  []model.ConversationMessage
	TotalCost     float64
	TotalTokensIn int
	TotalTokensOut int
	StepCount     int
	Model         string
	Error         string
}

// Executor drives the agentic loop for a single run.
type Executor struct {
	llm       LLMClient
	tools     ToolExecutor
	runtime   *runprotocol.Client
	workspace string
	logger    *observability.Logger
}

// NewExecutor constructs a loop executor bound to one run's protocol client.
func NewExecutor(llm LLMClient, tools ToolExecutor, runtime *runprotocol.Client, workspacePath string, logger *observability.Logger) *Executor {
	return &Executor{llm: llm, tools: tools, runtime: runtime, workspace: workspacePath, logger: logger}
}

type loopState struct {
	model          string
	totalCost      float64
	totalTokensIn  int
	totalTokensOut int
	stepCount      int
	finalContent   string
	errMsg         string
	toolMessages   []model.ConversationMessage
}

// Run executes the loop until the model stops, a termination condition
// fires, or the run is cancelled.
func (e *Executor) Run(ctx context.Context, messages []model.ConversationMessage, cfg Config) Result {
	cfg = sanitizeConfig(cfg)
	state := &loopState{model: cfg.Model}
	toolsArray := e.tools.OpenAITools()

	phase := PhaseInit
	iterationsExhausted := true

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		if e.runtime.IsCancelled() {
			state.errMsg = "cancelled"
			iterationsExhausted = false
			break
		}

		phase = PhaseStream
		stop, errMsg := e.doIteration(ctx, cfg, toolsArray, &messages, state, iteration)
		if errMsg != "" {
			state.errMsg = errMsg
			iterationsExhausted = false
			break
		}
		if stop {
			iterationsExhausted = false
			break
		}

		if cfg.MaxCost > 0 && state.totalCost >= cfg.MaxCost {
			e.logger.Info(ctx, "cost limit reached", "total_cost", state.totalCost, "max_cost", cfg.MaxCost)
			iterationsExhausted = false
			break
		}
	}

	if iterationsExhausted {
		e.logger.Warn(ctx, "agent loop hit max iterations", "max_iterations", cfg.MaxIterations)
	}
	_ = phase

	return Result{
		FinalContent:   state.finalContent,
		ToolMessages:   state.toolMessages,
		TotalCost:      state.totalCost,
		TotalTokensIn:  state.totalTokensIn,
		TotalTokensOut: state.totalTokensOut,
		StepCount:      state.stepCount,
		Model:          state.model,
		Error:          state.errMsg,
	}
}

// doIteration runs one LLM call plus its tool calls. Returns (stop=true) on
// a text-only completion, or a non-empty error message on failure.
func (e *Executor) doIteration(ctx context.Context, cfg Config, toolsArray []model.ToolDefinition, messages *[]model.ConversationMessage, state *loopState, iteration int) (bool, string) {
	llmDecision, err := e.runtime.RequestToolCall(ctx, "LLM", "chat_completion", "")
	if err != nil {
		return false, fmt.Sprintf("LLM permission request failed: %v", err)
	}
	if llmDecision.Decision != model.DecisionAllow {
		e.logger.Warn(ctx, "LLM call denied by policy", "reason", llmDecision.Reason)
		return false, fmt.Sprintf("LLM call denied: %s", llmDecision.Reason)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModelFallback
	}

	var streamed []byte
	resp, err := e.llm.ChatCompletionStream(ctx, ChatCompletionRequest{
		Messages:    *messages,
		Model:       modelName,
		Tools:       toolsArray,
		Temperature: cfg.Temperature,
		Tags:        cfg.Tags,
	}, func(chunk string) { streamed = append(streamed, chunk...) })
	if err != nil {
		e.logger.Error(ctx, "LLM call failed", "iteration", iteration, "error", err)
		return false, fmt.Sprintf("LLM call failed: %v", err)
	}

	fullText := string(streamed)
	if fullText == "" {
		fullText = resp.Content
	}
	if fullText != "" {
		if err := e.runtime.SendOutput(ctx, fullText, "stdout"); err != nil {
			e.logger.Warn(ctx, "send output failed", "error", err)
		}
	}

	state.totalCost += resp.CostUSD
	state.totalTokensIn += resp.TokensIn
	state.totalTokensOut += resp.TokensOut
	if resp.Model != "" {
		state.model = resp.Model
	}

	reportOutput := toolCallsPlaceholder
	if fullText != "" {
		reportOutput = truncate(fullText, llmOutputReportChars)
	}
	if err := e.runtime.ReportToolResult(ctx, llmDecision.CallID, "LLM", true, reportOutput, "", resp.CostUSD, resp.TokensIn, resp.TokensOut, resp.Model); err != nil {
		e.logger.Warn(ctx, "report LLM result failed", "error", err)
	}

	if len(resp.ToolCalls) == 0 {
		state.finalContent = resp.Content
		return true, ""
	}

	assistantMsg := model.ConversationMessage{
		Role:      model.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
	state.toolMessages = append(state.toolMessages, assistantMsg)
	*messages = append(*messages, assistantMsg)

	for _, tc := range resp.ToolCalls {
		state.stepCount++
		resultMsg := e.executeToolCall(ctx, tc, state)
		state.toolMessages = append(state.toolMessages, resultMsg)
		*messages = append(*messages, resultMsg)
		if e.runtime.IsCancelled() {
			break
		}
	}

	return false, ""
}

// executeToolCall requests permission for one tool call, runs it, reports
// the outcome, and returns the tool-result message to append to history.
func (e *Executor) executeToolCall(ctx context.Context, tc model.ToolCallRef, state *loopState) model.ConversationMessage {
	var arguments map[string]any
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &arguments); err != nil {
			arguments = map[string]any{}
		}
	} else {
		arguments = map[string]any{}
	}

	decision, err := e.runtime.RequestToolCall(ctx, tc.Name, truncate(tc.Arguments, toolCommandReportChars), "")
	if err != nil {
		resultText := fmt.Sprintf("permission request failed: %v", err)
		if repErr := e.runtime.ReportToolResult(ctx, "", tc.Name, false, "", resultText, 0, 0, 0, ""); repErr != nil {
			e.logger.Warn(ctx, "report tool result failed", "error", repErr)
		}
		return toolResultMessage(tc, resultText)
	}

	if decision.Decision != model.DecisionAllow {
		resultText := fmt.Sprintf("Permission denied: %s", decision.Reason)
		if err := e.runtime.ReportToolResult(ctx, decision.CallID, tc.Name, false, "", resultText, 0, 0, 0, ""); err != nil {
			e.logger.Warn(ctx, "report tool result failed", "error", err)
		}
		return toolResultMessage(tc, resultText)
	}

	result := e.tools.Execute(ctx, tc.Name, arguments, e.workspace)

	var resultText string
	if result.Success {
		resultText = result.Output
	} else if result.Error != "" {
		resultText = fmt.Sprintf("Error: %s", result.Error)
	} else {
		resultText = "Tool returned an error"
	}

	reportOutput := ""
	if result.Output != "" {
		reportOutput = truncate(result.Output, toolOutputReportChars)
	}
	if err := e.runtime.ReportToolResult(ctx, decision.CallID, tc.Name, result.Success, reportOutput, result.Error, 0, 0, 0, ""); err != nil {
		e.logger.Warn(ctx, "report tool result failed", "error", err)
	}

	return toolResultMessage(tc, resultText)
}

func toolResultMessage(tc model.ToolCallRef, content string) model.ConversationMessage {
	return model.ConversationMessage{
		Role:       model.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
