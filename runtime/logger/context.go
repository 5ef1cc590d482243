package logger

import (
	"context"
	"strconv"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record logged with a *Context helper.
const (
	// ContextKeySessionID identifies the relay session (one WebSocket connection).
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyCallID identifies the telephony call the session belongs to.
	ContextKeyCallID contextKey = "call_id"

	// ContextKeyResponseID identifies the turn being answered.
	ContextKeyResponseID contextKey = "response_id"

	// ContextKeyInteractionType is the inbound event type that started the turn.
	ContextKeyInteractionType contextKey = "interaction_type"

	// ContextKeyProvider identifies the LLM provider.
	ContextKeyProvider contextKey = "provider"

	// ContextKeyModel identifies the model being called.
	ContextKeyModel contextKey = "model"
)

// allContextKeys lists the keys the handler extracts, in output order.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyCallID,
	ContextKeyResponseID,
	ContextKeyInteractionType,
	ContextKeyProvider,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithCallID returns a new context with the call ID set.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, ContextKeyCallID, callID)
}

// WithResponseID returns a new context with the turn's response ID set.
func WithResponseID(ctx context.Context, responseID int) context.Context {
	return context.WithValue(ctx, ContextKeyResponseID, strconv.Itoa(responseID))
}

// WithInteractionType returns a new context with the interaction type set.
func WithInteractionType(ctx context.Context, interactionType string) context.Context {
	return context.WithValue(ctx, ContextKeyInteractionType, interactionType)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}
