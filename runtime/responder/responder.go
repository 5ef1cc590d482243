// Package responder streams one model reply per turn onto the voice
// transport.
//
// The Controller turns a provider's delta stream into outbound frames: zero
// or more content frames, then exactly one terminal frame, on every exit path
// including provider errors, timeouts, cancellation, and panics. Failures are
// recorded on the completion span, logged, and counted; they never reach the
// caller.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/callrelay/runtime/logger"
	metrics "github.com/AltairaLabs/callrelay/runtime/metrics/prometheus"
	"github.com/AltairaLabs/callrelay/runtime/prompt"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/telemetry"
	"github.com/AltairaLabs/callrelay/runtime/types"
)

// DefaultTurnTimeout bounds a turn when no timeout is configured.
const DefaultTurnTimeout = 30 * time.Second

// Provider request statuses.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// Controller answers turns for one session using a shared provider.
type Controller struct {
	provider    providers.Provider
	assembler   *prompt.Assembler
	greeting    string
	defaults    providers.ProviderDefaults
	turnTimeout time.Duration
	limiter     *rate.Limiter
	tracer      trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithDefaults sets the decoding parameters sent with every request.
func WithDefaults(d providers.ProviderDefaults) Option {
	return func(c *Controller) {
		c.defaults = d
	}
}

// WithTurnTimeout bounds each turn. Zero or negative disables the bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.turnTimeout = d
	}
}

// WithLimiter throttles provider requests. A nil limiter means unlimited.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Controller) {
		c.limiter = l
	}
}

// WithTracer sets the tracer used for completion spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// New creates a Controller. A nil persona selects the default persona.
func New(provider providers.Provider, persona *prompt.Persona, opts ...Option) *Controller {
	if persona == nil {
		persona = prompt.DefaultPersona()
	}
	c := &Controller{
		provider:    provider,
		assembler:   prompt.NewAssembler(persona),
		greeting:    persona.Greeting,
		turnTimeout: DefaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}
	return c
}

// Greet emits the session's opening frame.
func (c *Controller) Greet(ctx context.Context, emit EmitFunc) error {
	if err := emit(types.GreetingFrame(c.greeting)); err != nil {
		logger.WarnContext(ctx, "Failed to send greeting", "error", err)
		return err
	}
	metrics.RecordFrame(metrics.FrameGreeting)
	logger.DebugContext(ctx, "Greeting sent")
	return nil
}

// RespondToTurn streams the reply to turn through emit and returns after the
// terminal frame has been emitted. It never fails; errors are recorded on the
// span, logged, and counted.
func (c *Controller) RespondToTurn(ctx context.Context, turn *types.TurnRequest, emit EmitFunc) {
	start := time.Now()
	interaction := string(turn.InteractionType)
	ctx = logger.WithResponseID(ctx, turn.ResponseID)
	ctx = logger.WithInteractionType(ctx, interaction)
	ctx = logger.WithProvider(ctx, c.provider.ID())
	ctx = logger.WithModel(ctx, c.provider.Model())

	w := newTurnWriter(turn.ResponseID, emit)
	outcome := metrics.OutcomeError

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomeError
			logger.ErrorContext(ctx, "Turn panicked", "panic", fmt.Sprint(r))
		}
		c.complete(ctx, w)
		metrics.RecordTurn(interaction, outcome, time.Since(start).Seconds())
		logger.DebugContext(ctx, "Turn finished",
			"outcome", outcome,
			"content_frames", w.ContentFrames(),
			"duration", time.Since(start))
	}()

	outcome = c.stream(ctx, turn, w)
}

// stream runs the provider call and forwards deltas. It returns the turn outcome.
func (c *Controller) stream(ctx context.Context, turn *types.TurnRequest, w *turnWriter) string {
	messages := c.assembler.Assemble(turn)
	req := c.defaults.Request(messages)

	if c.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.turnTimeout)
		defer cancel()
	}

	streamCtx, span := telemetry.StartCompletionSpan(ctx, c.tracer, &telemetry.CompletionSpan{
		Provider:         c.provider.ID(),
		Model:            c.provider.Model(),
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		ResponseID:       turn.ResponseID,
		InteractionType:  string(turn.InteractionType),
	})
	defer span.End()

	// Stops the provider goroutine on every exit path.
	streamCtx, stop := context.WithCancel(streamCtx)
	defer stop()

	logger.LLMCall(ctx, c.provider.ID(), c.provider.Model(), len(messages), req.Temperature)

	if c.limiter != nil {
		if err := c.limiter.Wait(streamCtx); err != nil {
			return c.fail(ctx, span, fmt.Errorf("rate limit wait: %w", err), 0)
		}
	}

	reqStart := time.Now()
	chunks, err := c.provider.ChatStream(streamCtx, req)
	if err != nil {
		c.recordRequest(statusError, reqStart)
		return c.fail(ctx, span, err, 0)
	}

	deltas := 0
	finish := ""
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := streamCtx.Err(); err != nil {
					c.recordRequest(statusError, reqStart)
					return c.fail(ctx, span, err, deltas)
				}
				c.recordRequest(statusSuccess, reqStart)
				span.SetAttributes(
					attribute.Int(telemetry.AttrDeltaCount, deltas),
					attribute.String(telemetry.AttrFinishReason, finish),
				)
				logger.LLMStreamDone(ctx, c.provider.ID(), deltas, "finish_reason", finish)
				return metrics.OutcomeCompleted
			}

			if chunk.Error != nil {
				c.recordRequest(statusError, reqStart)
				return c.fail(ctx, span, chunk.Error, deltas)
			}
			if chunk.FinishReason != nil {
				finish = *chunk.FinishReason
			}
			if chunk.Delta == "" {
				continue
			}

			if deltas == 0 {
				metrics.RecordFirstDelta(c.provider.ID(), c.provider.Model(), time.Since(reqStart).Seconds())
			}
			deltas++

			if err := w.Content(chunk.Delta); err != nil {
				c.recordRequest(statusError, reqStart)
				return c.fail(ctx, span, fmt.Errorf("emit content frame: %w", err), deltas)
			}
			metrics.RecordFrame(metrics.FrameContent)

		case <-streamCtx.Done():
			c.recordRequest(statusError, reqStart)
			return c.fail(ctx, span, streamCtx.Err(), deltas)
		}
	}
}

// fail records err and returns the matching outcome. ctx is the turn
// context including its timeout. Cancellation is noted on the span without
// marking it failed.
func (c *Controller) fail(ctx context.Context, span trace.Span, err error, deltas int) string {
	span.SetAttributes(attribute.Int(telemetry.AttrDeltaCount, deltas))

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		telemetry.RecordFailure(span, fmt.Errorf("turn timed out after %s: %w", c.turnTimeout, err))
		logger.WarnContext(ctx, "Turn timed out", "timeout", c.turnTimeout, "deltas", deltas)
		return metrics.OutcomeTimeout
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		span.SetAttributes(attribute.String(telemetry.AttrFinishReason, providers.FinishReasonCancelled))
		span.AddEvent("turn.cancelled")
		logger.DebugContext(ctx, "Turn cancelled", "deltas", deltas)
		return metrics.OutcomeCancelled
	default:
		telemetry.RecordFailure(span, err)
		logger.LLMError(ctx, c.provider.ID(), err, "deltas", deltas)
		return metrics.OutcomeError
	}
}

func (c *Controller) recordRequest(status string, start time.Time) {
	metrics.RecordProviderRequest(c.provider.ID(), c.provider.Model(), status, time.Since(start).Seconds())
}

// complete emits the terminal frame for w.
func (c *Controller) complete(ctx context.Context, w *turnWriter) {
	err := w.Complete()
	switch {
	case err == nil:
		metrics.RecordFrame(metrics.FrameTerminal)
	case errors.Is(err, ErrTurnCompleted):
		metrics.RecordInvariantViolation()
		logger.ErrorContext(ctx, "Invariant violation: second terminal frame refused")
	default:
		logger.WarnContext(ctx, "Failed to send terminal frame", "error", err)
	}
}
