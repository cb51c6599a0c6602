// Package runexec drives one supervised agent-loop execution from a bus
// message to its terminal runs.complete/conversation.run.complete message,
// wiring together the Run Protocol Client, the Agent Loop, the Tool
// Registry (plus any per-run MCP workbench), and the History Manager.
//
// Grounded on original_source/workers/codeforge/consumer/_conversation.py's
// _handle_conversation_run, which builds an AgentLoopExecutor and drives it
// end to end (decode -> tool setup -> loop -> complete) — the file this
// worker's run execution actually matches, as opposed to _runs.py's
// _handle_run_start, whose execute_with_runtime takes a different,
// narrower shape. Re-targeted onto this worker's own internal/agentloop.Executor
// and internal/runprotocol.Client rather than a direct translation.
package runexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/agentloop"
	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/history"
	"github.com/Strob0t/CodeForge-sub000/internal/mcp"
	"github.com/Strob0t/CodeForge-sub000/internal/mcpworkbench"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
	"github.com/Strob0t/CodeForge-sub000/internal/runprotocol"
	"github.com/Strob0t/CodeForge-sub000/internal/toolregistry"
)

// defaultSystemPrompt is used when a run carries no Mode.PromptPrefix.
const defaultSystemPrompt = "You are an autonomous coding agent operating inside a sandboxed workspace."

// Handler drives runs.start and conversation.run.start. Both subjects carry
// the identical model.Run envelope and run through the same Agent Loop; they
// differ only in which subject receives the completion message, since
// spec.md §4.1 declares conversation.run.start a lighter entry point (no
// dedicated toolcall/output/heartbeat subjects of its own) for callers that
// only need a start/complete correlation rather than the full streaming
// Run Protocol surface runs.start exposes.
type Handler struct {
	js      jetstream.JetStream
	llm     agentloop.LLMClient
	history *history.Manager
	logger  *observability.Logger
}

// NewHandler builds a run-execution handler.
func NewHandler(js jetstream.JetStream, llm agentloop.LLMClient, historyMgr *history.Manager, logger *observability.Logger) *Handler {
	return &Handler{js: js, llm: llm, history: historyMgr, logger: logger}
}

// HandleRunStart implements bus.Handler for runs.start.
func (h *Handler) HandleRunStart(ctx context.Context, msg jetstream.Msg) error {
	run, err := decodeRun(msg)
	if err != nil {
		return err
	}
	h.execute(ctx, run, bus.SubjectRunComplete)
	return nil
}

// HandleConversationStart implements bus.Handler for conversation.run.start.
func (h *Handler) HandleConversationStart(ctx context.Context, msg jetstream.Msg) error {
	run, err := decodeRun(msg)
	if err != nil {
		return err
	}
	h.execute(ctx, run, bus.SubjectConversationRunComplete)
	return nil
}

func decodeRun(msg jetstream.Msg) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(msg.Data(), &run); err != nil {
		return model.Run{}, fmt.Errorf("runexec: decode run: %w", err)
	}
	return run, nil
}

// execute runs one run end to end. Once the run protocol client exists,
// every failure path (LLM errors, tool setup failures, cancellation) is
// resolved into exactly one CompleteRun call rather than a propagated
// error, so malformed downstream state never causes the bus consumer to
// retry or DLQ an entire agent execution — only a decode failure does that.
func (h *Handler) execute(ctx context.Context, run model.Run, completionSubject string) {
	ctx = observability.AddRunID(observability.AddTaskID(ctx, run.TaskID), run.RunID)

	client := runprotocol.NewClient(h.js, run.RunID, run.TaskID, run.ProjectID, h.logger)
	if completionSubject != bus.SubjectRunComplete {
		client.SetCompletionSubject(completionSubject)
	}

	if err := client.StartCancelListener(ctx); err != nil {
		h.logger.Warn(ctx, "run cancel listener failed to start", "run_id", run.RunID, "error", err)
	}
	client.StartHeartbeat(ctx)

	registry := toolregistry.BuildDefault(run.WorkspacePath)
	applyRunMode(registry, run.Mode)

	mcpMgr := h.startMCP(ctx, run)
	if mcpMgr != nil {
		registered := mcpworkbench.MergeTools(registry, mcpMgr)
		h.logger.Info(ctx, "mcp tools merged", "run_id", run.RunID, "tools", registered)
		defer func() {
			if err := mcpMgr.Stop(); err != nil {
				h.logger.Warn(ctx, "mcp manager stop failed", "run_id", run.RunID, "error", err)
			}
		}()
	}

	runCtx := ctx
	if run.Bounds.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(run.Bounds.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	messages := h.buildInitialMessages(runCtx, run)
	executor := agentloop.NewExecutor(h.llm, registry, client, run.WorkspacePath, h.logger)

	loopCfg := agentloop.Config{
		MaxIterations: run.Bounds.MaxSteps,
		MaxCost:       run.Bounds.MaxCost,
	}
	if run.Mode.ScenarioTag != "" {
		loopCfg.Tags = []string{run.Mode.ScenarioTag}
	}

	result := executor.Run(runCtx, messages, loopCfg)

	status := model.RunStatusCompleted
	switch {
	case client.IsCancelled():
		status = model.RunStatusCancelled
	case result.Error != "":
		status = model.RunStatusFailed
	}

	if err := client.CompleteRun(ctx, status, result.FinalContent, result.Error, result.StepCount); err != nil {
		h.logger.Error(ctx, "complete run publish failed", "run_id", run.RunID, "error", err)
	}
}

func (h *Handler) buildInitialMessages(ctx context.Context, run model.Run) []model.ConversationMessage {
	systemPrompt := run.Mode.PromptPrefix
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	for _, microagent := range run.Microagents {
		systemPrompt += "\n\n" + microagent
	}

	conversation := []model.ConversationMessage{{Role: model.RoleUser, Content: run.Prompt}}
	built := h.history.BuildMessages(ctx, systemPrompt, conversation, run.ContextEntries)
	return toConversationMessages(built)
}

func toConversationMessages(messages []history.Message) []model.ConversationMessage {
	out := make([]model.ConversationMessage, len(messages))
	for i, m := range messages {
		out[i] = model.ConversationMessage{
			Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID,
			Name: m.Name, ToolCalls: m.ToolCalls,
		}
	}
	return out
}

// applyRunMode narrows the tool registry to a run's allow/deny lists.
// Denied tools are removed outright; when an allow list is present, every
// tool not named in it is removed too (allow list wins the intersection).
func applyRunMode(reg *toolregistry.Registry, mode model.RunMode) {
	for _, name := range mode.DeniedTools {
		reg.Unregister(name)
	}
	if len(mode.AllowedTools) == 0 {
		return
	}
	allowed := make(map[string]struct{}, len(mode.AllowedTools))
	for _, name := range mode.AllowedTools {
		allowed[name] = struct{}{}
	}
	for _, name := range reg.Names() {
		if _, ok := allowed[name]; !ok {
			reg.Unregister(name)
		}
	}
}

// startMCP connects a run's declared MCP servers, returning nil (and
// logging a warning) if none are declared or the connection attempt fails.
func (h *Handler) startMCP(ctx context.Context, run model.Run) *mcp.Manager {
	if len(run.MCPServers) == 0 {
		return nil
	}
	cfg := mcpworkbench.BuildConfig(run.MCPServers)
	mgr := mcp.NewManager(cfg, slog.Default())
	if err := mgr.Start(ctx); err != nil {
		h.logger.Warn(ctx, "mcp manager start failed, continuing without MCP tools", "run_id", run.RunID, "error", err)
		return nil
	}
	return mgr
}
