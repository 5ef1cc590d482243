// Package providers defines the streaming chat-completion contract the relay
// speaks to LLM backends, plus the shared HTTP and SSE plumbing used by
// concrete implementations.
package providers

import (
	"context"

	"github.com/AltairaLabs/callrelay/runtime/types"
)

// ChatRequest is one streaming completion request. Decoding parameters are
// fixed per deployment and copied from ProviderDefaults by the caller.
type ChatRequest struct {
	Messages         []types.Message
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// ProviderDefaults holds the decoding parameters applied to every request.
type ProviderDefaults struct {
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// Request builds a ChatRequest for messages using these defaults.
func (d ProviderDefaults) Request(messages []types.Message) ChatRequest {
	return ChatRequest{
		Messages:         messages,
		Temperature:      d.Temperature,
		TopP:             d.TopP,
		FrequencyPenalty: d.FrequencyPenalty,
		PresencePenalty:  d.PresencePenalty,
		MaxTokens:        d.MaxTokens,
	}
}

// Provider streams chat completions.
//
// ChatStream returns an error only when the request could not be started.
// Once a channel is returned, failures arrive as a chunk with Error set, and
// the channel is always closed by the provider. Implementations must stop
// sending and close the channel promptly when ctx is cancelled.
//
// A Provider is shared by concurrent turns and must be safe for concurrent use.
type Provider interface {
	ID() string
	Model() string
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	Close() error
}
