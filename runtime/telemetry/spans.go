package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrModelID          = "model.id"
	AttrTemperature      = "llm.temperature"
	AttrMaxTokens        = "llm.max_tokens"
	AttrTopP             = "llm.top_p"
	AttrFrequencyPenalty = "llm.frequency_penalty"
	AttrPresencePenalty  = "llm.presence_penalty"
	AttrResponseID       = "turn.response_id"
	AttrInteractionType  = "turn.interaction_type"
	AttrDeltaCount       = "turn.delta_count"
	AttrFinishReason     = "llm.finish_reason"
	AttrSessionID        = "session.id"
	AttrCallID           = "call.id"
)

// SessionSpanName names the span covering one relay session.
const SessionSpanName = "callrelay.session"

// CompletionSpan describes a provider call for span naming and attributes.
type CompletionSpan struct {
	Provider         string
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	ResponseID       int
	InteractionType  string
}

// Name returns the span name, "<provider>.chat.completions".
func (c *CompletionSpan) Name() string {
	return c.Provider + ".chat.completions"
}

func (c *CompletionSpan) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrModelID, c.Model),
		attribute.Float64(AttrTemperature, c.Temperature),
		attribute.Int(AttrMaxTokens, c.MaxTokens),
		attribute.Float64(AttrTopP, c.TopP),
		attribute.Float64(AttrFrequencyPenalty, c.FrequencyPenalty),
		attribute.Float64(AttrPresencePenalty, c.PresencePenalty),
		attribute.Int(AttrResponseID, c.ResponseID),
		attribute.String(AttrInteractionType, c.InteractionType),
	}
}

// StartCompletionSpan opens a client span for one streaming completion.
func StartCompletionSpan(ctx context.Context, tracer trace.Tracer, c *CompletionSpan) (context.Context, trace.Span) {
	return tracer.Start(ctx, c.Name(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(c.attributes()...),
	)
}

// StartSessionSpan opens the span that parents every turn of a session.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, sessionID, callID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrSessionID, sessionID)}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrCallID, callID))
	}
	return tracer.Start(ctx, SessionSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// RecordFailure records err on span and marks the span failed.
// A nil err is ignored.
func RecordFailure(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
