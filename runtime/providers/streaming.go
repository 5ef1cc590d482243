package providers

// Finish reasons reported on the last chunk of a stream.
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonCancelled = "cancelled"
	FinishReasonError     = "error"
)

// StreamChunk is one event of a completion stream.
type StreamChunk struct {
	// Delta is the new text in this chunk. It may be empty.
	Delta string `json:"delta"`

	// FinishReason is nil until the stream is complete.
	FinishReason *string `json:"finish_reason,omitempty"`

	// Error is set when the stream failed. It is always the last chunk.
	Error error `json:"-"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
