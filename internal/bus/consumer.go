// Package bus implements the worker's durable pub/sub consumer: it binds to
// a NATS JetStream stream, subscribes to the subject table named in
// spec.md §4.1, and dispatches each message to a handler selected by
// subject, enforcing the retry/DLQ/fail-safe-reply policy described in
// spec.md §4.1 and §7.
//
// Grounded on the JetStream usage idiom shown in the retrieved
// other_examples component (a *jetstream.JetStream/*jetstream.Consumer
// pair with a Fetch-loop pump), generalized into durable push-style
// Consume subscriptions — one per subject — and on
// original_source/workers/codeforge/consumer/_base.py for the exact
// retry-count/DLQ/fail-safe-reply mechanics.
package bus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// Handler processes one message delivered on a subject. Returning an error
// signals a retryable failure; the Consumer takes care of ack/nak/DLQ.
type Handler func(ctx context.Context, msg jetstream.Msg) error

// FailSafeReplier is implemented by handlers for request/reply subjects
// whose remote sender synchronously waits for a paired result subject. When
// the handler fails (it returns an error or panics), the Consumer calls
// PublishErrorReply so the waiter never blocks forever.
type FailSafeReplier interface {
	PublishErrorReply(ctx context.Context, msg jetstream.Msg) error
}

// Subscription pairs a subject with its handler and an optional fail-safe
// reply publisher.
type Subscription struct {
	Subject     string
	Handler     Handler
	FailSafe    FailSafeReplier
	DurableName string
}

// Consumer binds a NATS JetStream connection, ensures the CODEFORGE stream
// exists, and pumps every declared subscription concurrently.
type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *observability.Logger
	metric *observability.Metrics

	subs []Subscription

	mu         sync.Mutex
	running    bool
	consumeCxs []jetstream.ConsumeContext
}

// NewConsumer dials the NATS URL and prepares the JetStream context. The
// stream is not created until Start is called.
func NewConsumer(url string, logger *observability.Logger, metric *observability.Metrics) (*Consumer, error) {
	nc, err := nats.Connect(url, nats.Name("codeforge-worker"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Consumer{nc: nc, js: js, logger: logger, metric: metric}, nil
}

// JetStream exposes the underlying JetStream context so handler
// constructors can publish result/reply messages without the Consumer
// itself knowing about any particular subject's payload shape.
func (c *Consumer) JetStream() jetstream.JetStream {
	return c.js
}

// Register adds a subject subscription. Must be called before Start.
func (c *Consumer) Register(sub Subscription) {
	if sub.DurableName == "" {
		sub.DurableName = "codeforge-worker-" + sanitizeDurable(sub.Subject)
	}
	c.subs = append(c.subs, sub)
}

// Start ensures the stream exists, creates durable consumers for every
// registered subscription, and begins pumping all of them concurrently. It
// blocks until the context is cancelled; Stop does not unblock it.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureStream(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	for _, sub := range c.subs {
		sub := sub
		jsConsumer, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
			Durable:       sub.DurableName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			FilterSubject: sub.Subject,
		})
		if err != nil {
			return fmt.Errorf("create consumer for %s: %w", sub.Subject, err)
		}

		cc, err := jsConsumer.Consume(func(msg jetstream.Msg) {
			c.dispatch(ctx, sub, msg)
		})
		if err != nil {
			return fmt.Errorf("start consume loop for %s: %w", sub.Subject, err)
		}
		c.mu.Lock()
		c.consumeCxs = append(c.consumeCxs, cc)
		c.mu.Unlock()
		c.logger.Info(ctx, "subscribed", "subject", sub.Subject)
	}

	<-ctx.Done()
	return nil
}

// Stop drains the connection with a bounded deadline, then force-closes.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	for _, cc := range c.consumeCxs {
		cc.Stop()
	}
	c.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.nc.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn(ctx, "drain failed, forcing close", "error", err)
			c.nc.Close()
		}
	case <-drainCtx.Done():
		c.logger.Warn(ctx, "drain timed out after 10s, closing connection")
		c.nc.Close()
	}
	return nil
}

func (c *Consumer) ensureStream(ctx context.Context) error {
	_, err := c.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: StreamSubjects,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	c.logger.Info(ctx, "created JetStream stream", "stream", StreamName)
	return nil
}

// dispatch runs one subscription's handler for one message, applying the
// request-id log binding, retry/DLQ policy, and fail-safe reply rule.
func (c *Consumer) dispatch(ctx context.Context, sub Subscription, msg jetstream.Msg) {
	start := time.Now()
	requestID := headerValue(msg, HeaderRequestID)
	hctx := ctx
	if requestID != "" {
		hctx = observability.AddRequestID(ctx, requestID)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(hctx, "handler panicked", "subject", sub.Subject, "panic", r)
			c.handleFailure(hctx, sub, msg, fmt.Errorf("panic: %v", r))
		}
		c.metric.BusHandlerDuration.WithLabelValues(sub.Subject).Observe(time.Since(start).Seconds())
	}()

	if err := sub.Handler(hctx, msg); err != nil {
		c.logger.Error(hctx, "handler error", "subject", sub.Subject, "error", err)
		c.handleFailure(hctx, sub, msg, err)
		return
	}

	if err := msg.Ack(); err != nil {
		c.logger.Warn(hctx, "ack failed", "subject", sub.Subject, "error", err)
	}
	c.metric.BusMessagesProcessed.WithLabelValues(sub.Subject, "ack").Inc()
}

// handleFailure implements the retry-count/DLQ policy: below MaxRetries the
// message is naked for redelivery; at the bound it is moved to the DLQ
// subject and acked exactly once, regardless of the DLQ publish outcome.
func (c *Consumer) handleFailure(ctx context.Context, sub Subscription, msg jetstream.Msg, handlerErr error) {
	if sub.FailSafe != nil {
		if err := sub.FailSafe.PublishErrorReply(ctx, msg); err != nil {
			c.logger.Error(ctx, "fail-safe reply publish failed", "subject", sub.Subject, "error", err)
		}
	}

	retryCount := retryCountOf(msg)
	if retryCount+1 >= MaxRetries {
		c.moveToDLQ(ctx, msg)
		c.metric.BusMessagesProcessed.WithLabelValues(sub.Subject, "dlq").Inc()
		return
	}

	if err := msg.Nak(); err != nil {
		c.logger.Warn(ctx, "nak failed", "subject", sub.Subject, "error", err)
	}
	c.metric.BusMessagesProcessed.WithLabelValues(sub.Subject, "nak").Inc()
}

func (c *Consumer) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlqSubject := msg.Subject() + ".dlq"
	headers := nats.Header{}
	for k, v := range msg.Headers() {
		headers[k] = v
	}

	_, err := c.js.PublishMsg(ctx, &nats.Msg{
		Subject: dlqSubject,
		Data:    msg.Data(),
		Header:  headers,
	})
	if err != nil {
		c.logger.Error(ctx, "DLQ publish failed", "dlq_subject", dlqSubject, "error", err)
	}

	// The original message is always acked after a DLQ attempt, even when
	// the DLQ publish itself failed, to avoid endless redelivery loops.
	if ackErr := msg.Ack(); ackErr != nil {
		c.logger.Warn(ctx, "ack after DLQ failed", "error", ackErr)
	}
}

func retryCountOf(msg jetstream.Msg) int {
	raw := headerValue(msg, HeaderRetryCount)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func headerValue(msg jetstream.Msg, key string) string {
	h := msg.Headers()
	if h == nil {
		return ""
	}
	return h.Get(key)
}

func sanitizeDurable(subject string) string {
	out := make([]byte, 0, len(subject))
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
