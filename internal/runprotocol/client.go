// Package runprotocol implements the per-run conversational protocol between
// the agent loop and the control plane: each tool call is individually
// approved over NATS before execution, results are reported back, and the
// run periodically heartbeats until it publishes exactly one completion
// message.
//
// Grounded line-for-line on original_source/workers/codeforge/runtime.py's
// RuntimeClient, translated into the teacher's background-ticker-goroutine
// idiom from internal/agents/heartbeat and the accumulator-struct shape of
// internal/agent/loop.go's LoopState (neither teacher package is kept in
// this tree).
package runprotocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// ResponseTimeout bounds how long RequestToolCall waits for a policy
// decision before defaulting to deny.
const ResponseTimeout = 30 * time.Second

// HeartbeatInterval is how often the run publishes a liveness heartbeat.
const HeartbeatInterval = 30 * time.Second

// ToolCallRequest is published on SubjectRunToolcallRequest.
type ToolCallRequest struct {
	RunID   string `json:"run_id"`
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Command string `json:"command,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ToolCallResponse is the control plane's reply on SubjectRunToolcallResponse.
type ToolCallResponse struct {
	CallID   string `json:"call_id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// ToolCallResultMessage is published on SubjectRunToolcallResult.
type ToolCallResultMessage struct {
	RunID     string  `json:"run_id"`
	CallID    string  `json:"call_id"`
	Tool      string  `json:"tool"`
	Success   bool    `json:"success"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	TokensIn  int     `json:"tokens_in,omitempty"`
	TokensOut int     `json:"tokens_out,omitempty"`
	Model     string  `json:"model,omitempty"`
}

// RunCompleteMessage is published exactly once per run on SubjectRunComplete.
type RunCompleteMessage struct {
	RunID     string  `json:"run_id"`
	TaskID    string  `json:"task_id"`
	ProjectID string  `json:"project_id"`
	Status    string  `json:"status"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	CostUSD   float64 `json:"cost_usd"`
	StepCount int     `json:"step_count"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Model     string  `json:"model,omitempty"`
}

// OutputMessage is a streaming output line published on SubjectRunOutput.
type OutputMessage struct {
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id"`
	Line   string `json:"line"`
	Stream string `json:"stream"`
}

type cancelMessage struct {
	RunID string `json:"run_id"`
}

type heartbeatMessage struct {
	RunID     string  `json:"run_id"`
	Timestamp float64 `json:"timestamp"`
}

// Client drives the run protocol for a single run over JetStream.
type Client struct {
	js        jetstream.JetStream
	logger    *observability.Logger
	RunID     string
	TaskID    string
	ProjectID string

	completionSubject string

	stepCount     int64
	totalCostE6   int64 // micro-dollars, avoids float races under atomic add
	totalTokensIn int64
	totalTokensOut int64

	mu    sync.Mutex
	model string

	cancelled atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once

	heartbeatWG sync.WaitGroup
	cancelWG    sync.WaitGroup
}

// NewClient constructs a run protocol client bound to one run.
func NewClient(js jetstream.JetStream, runID, taskID, projectID string, logger *observability.Logger) *Client {
	return &Client{
		js:                js,
		logger:            logger,
		RunID:             runID,
		TaskID:            taskID,
		ProjectID:         projectID,
		completionSubject: bus.SubjectRunComplete,
		stopCh:            make(chan struct{}),
	}
}

// SetCompletionSubject overrides the subject CompleteRun publishes to,
// default bus.SubjectRunComplete. The conversation.run.start entry point
// uses this to publish on conversation.run.complete instead, while still
// sharing every other piece of the run protocol (toolcall negotiation,
// heartbeat, cancellation).
func (c *Client) SetCompletionSubject(subject string) {
	c.completionSubject = subject
}

// IsCancelled reports whether the control plane has cancelled this run.
func (c *Client) IsCancelled() bool { return c.cancelled.Load() }

// MarkCancelledForTest flips the cancelled flag without a control-plane
// message, for use by other packages' tests that need a cancelled runtime.
func (c *Client) MarkCancelledForTest() { c.cancelled.Store(true) }

// StepCount returns the number of ReportToolResult calls made so far,
// including the per-turn "LLM" report doIteration sends before any real
// tool call. It is a raw bookkeeping counter, not the run's published step
// count — CompleteRun takes that separately from the agent loop's own
// tool-only tally.
func (c *Client) StepCount() int { return int(atomic.LoadInt64(&c.stepCount)) }

// TotalCost returns the accumulated cost in USD.
func (c *Client) TotalCost() float64 { return float64(atomic.LoadInt64(&c.totalCostE6)) / 1e6 }

// StartCancelListener subscribes to run cancellation notices and flips the
// cancelled flag the moment one matching this run id arrives.
func (c *Client) StartCancelListener(ctx context.Context) error {
	consumer, err := c.ephemeralConsumer(ctx, bus.SubjectRunCancel)
	if err != nil {
		return fmt.Errorf("subscribe to cancel subject: %w", err)
	}

	c.cancelWG.Add(1)
	go func() {
		defer c.cancelWG.Done()
		for {
			select {
			case <-c.stopCh:
				return
			default:
			}
			msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(1*time.Second))
			if err != nil {
				continue
			}
			for msg := range msgs.Messages() {
				var payload cancelMessage
				if err := json.Unmarshal(msg.Data(), &payload); err == nil && payload.RunID == c.RunID {
					c.cancelled.Store(true)
					c.logger.Info(ctx, "run cancelled by control plane", "run_id", c.RunID)
				}
				_ = msg.Ack()
			}
			if c.cancelled.Load() {
				return
			}
		}
	}()
	return nil
}

// StartHeartbeat begins publishing a liveness heartbeat every
// HeartbeatInterval until StopHeartbeat is called or the run is cancelled.
func (c *Client) StartHeartbeat(ctx context.Context) {
	c.heartbeatWG.Add(1)
	go func() {
		defer c.heartbeatWG.Done()
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				if c.cancelled.Load() {
					return
				}
				payload := heartbeatMessage{RunID: c.RunID, Timestamp: float64(time.Now().UnixNano()) / 1e9}
				data, _ := json.Marshal(payload)
				if _, err := c.js.Publish(ctx, bus.SubjectRunHeartbeat, data); err != nil {
					c.logger.Warn(ctx, "heartbeat publish failed", "run_id", c.RunID, "error", err)
				}
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat ticker and waits for it to exit.
func (c *Client) StopHeartbeat() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.heartbeatWG.Wait()
}

// RequestToolCall asks the control plane's policy engine for permission to
// execute a tool call and blocks until a decision arrives or ResponseTimeout
// elapses. A cancelled run denies immediately without publishing.
func (c *Client) RequestToolCall(ctx context.Context, tool, command, path string) (model.PermissionDecision, error) {
	if c.cancelled.Load() {
		return model.PermissionDecision{Decision: model.DecisionDeny, Reason: "run cancelled"}, nil
	}

	callID := uuid.NewString()
	req := ToolCallRequest{RunID: c.RunID, CallID: callID, Tool: tool, Command: command, Path: path}
	data, err := json.Marshal(req)
	if err != nil {
		return model.PermissionDecision{}, fmt.Errorf("marshal tool call request: %w", err)
	}

	c.logger.Debug(ctx, "requesting tool call", "tool", tool, "call_id", callID)

	consumer, err := c.ephemeralConsumer(ctx, bus.SubjectRunToolcallResponse)
	if err != nil {
		return model.PermissionDecision{}, fmt.Errorf("subscribe to response subject: %w", err)
	}

	if _, err := c.js.Publish(ctx, bus.SubjectRunToolcallRequest, data); err != nil {
		return model.PermissionDecision{}, fmt.Errorf("publish tool call request: %w", err)
	}

	deadline := time.Now().Add(ResponseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Warn(ctx, "tool call response timed out", "call_id", callID)
			return model.PermissionDecision{CallID: callID, Decision: model.DecisionDeny, Reason: "response timeout"}, nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(remaining))
		cancel()
		if err != nil {
			continue
		}
		found := false
		var resp ToolCallResponse
		for msg := range msgs.Messages() {
			var r ToolCallResponse
			if json.Unmarshal(msg.Data(), &r) == nil && r.CallID == callID {
				resp = r
				found = true
			}
			_ = msg.Ack()
		}
		_ = waitCtx
		if found {
			decision := model.PermissionDecisionKind(resp.Decision)
			if decision == "" {
				decision = model.DecisionDeny
			}
			return model.PermissionDecision{CallID: callID, Decision: decision, Reason: resp.Reason}, nil
		}
	}
}

// ReportToolResult reports the outcome of an executed tool call. Accumulators
// (step count, cost, token totals) update unconditionally, even for denied
// or failed calls, before the result is published.
func (c *Client) ReportToolResult(ctx context.Context, callID, tool string, success bool, output, errMsg string, costUSD float64, tokensIn, tokensOut int, modelName string) error {
	atomic.AddInt64(&c.stepCount, 1)
	atomic.AddInt64(&c.totalCostE6, int64(costUSD*1e6))
	atomic.AddInt64(&c.totalTokensIn, int64(tokensIn))
	atomic.AddInt64(&c.totalTokensOut, int64(tokensOut))
	if modelName != "" {
		c.mu.Lock()
		c.model = modelName
		c.mu.Unlock()
	}

	result := ToolCallResultMessage{
		RunID: c.RunID, CallID: callID, Tool: tool, Success: success,
		Output: output, Error: errMsg, CostUSD: costUSD,
		TokensIn: tokensIn, TokensOut: tokensOut, Model: modelName,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal tool result: %w", err)
	}
	_, err = c.js.Publish(ctx, bus.SubjectRunToolcallResult, data)
	return err
}

// SendOutput streams one output line to the control plane.
func (c *Client) SendOutput(ctx context.Context, line, stream string) error {
	if stream == "" {
		stream = "stdout"
	}
	payload := OutputMessage{RunID: c.RunID, TaskID: c.TaskID, Line: line, Stream: stream}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal output message: %w", err)
	}
	_, err = c.js.Publish(ctx, bus.SubjectRunOutput, data)
	return err
}

// CompleteRun stops the heartbeat and publishes exactly one completion
// message summarizing the run's accumulated cost, tokens, and step count.
// stepCount is the agent loop's own tool-only tally (agentloop.Result.StepCount),
// not c.StepCount()'s raw report count, since the latter also counts the
// per-turn "LLM" permission report alongside real tool calls.
func (c *Client) CompleteRun(ctx context.Context, status model.RunStatus, output, errMsg string, stepCount int) error {
	c.StopHeartbeat()

	c.mu.Lock()
	modelName := c.model
	c.mu.Unlock()

	msg := RunCompleteMessage{
		RunID: c.RunID, TaskID: c.TaskID, ProjectID: c.ProjectID,
		Status: string(status), Output: output, Error: errMsg,
		CostUSD:   c.TotalCost(),
		StepCount: stepCount,
		TokensIn:  int(atomic.LoadInt64(&c.totalTokensIn)),
		TokensOut: int(atomic.LoadInt64(&c.totalTokensOut)),
		Model:     modelName,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal run complete message: %w", err)
	}
	if _, err := c.js.Publish(ctx, c.completionSubject, data); err != nil {
		return err
	}
	c.logger.Info(ctx, "run completed", "run_id", c.RunID, "status", status, "steps", stepCount, "cost", c.TotalCost())
	return nil
}

// ephemeralConsumer creates a non-durable JetStream pull consumer filtered
// to one subject, used for short-lived request/reply style waits.
func (c *Client) ephemeralConsumer(ctx context.Context, subject string) (jetstream.Consumer, error) {
	return c.js.CreateConsumer(ctx, bus.StreamName, jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		FilterSubject: subject,
	})
}
