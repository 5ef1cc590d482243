package types

// Outbound response types.
const (
	ResponseTypeResponse = "response"
	ResponseTypePingPong = "ping_pong"
)

// Frame is one outbound reply message for a turn. For a given ResponseID
// every frame except the last has ContentComplete=false; the last one has
// ContentComplete=true and empty content.
type Frame struct {
	ResponseType    string `json:"response_type"`
	ResponseID      int    `json:"response_id"`
	Content         string `json:"content"`
	ContentComplete bool   `json:"content_complete"`
	EndCall         bool   `json:"end_call"`
}

// ContentFrame wraps a single model delta.
func ContentFrame(responseID int, delta string) Frame {
	return Frame{
		ResponseType: ResponseTypeResponse,
		ResponseID:   responseID,
		Content:      delta,
	}
}

// TerminalFrame closes a turn.
func TerminalFrame(responseID int) Frame {
	return Frame{
		ResponseType:    ResponseTypeResponse,
		ResponseID:      responseID,
		ContentComplete: true,
	}
}

// GreetingFrame is the single frame sent when a session opens.
func GreetingFrame(greeting string) Frame {
	return Frame{
		ResponseType:    ResponseTypeResponse,
		ResponseID:      GreetingResponseID,
		Content:         greeting,
		ContentComplete: true,
	}
}

// PingPong echoes a keepalive timestamp back to the voice front end.
type PingPong struct {
	ResponseType string `json:"response_type"`
	Timestamp    int64  `json:"timestamp"`
}

// NewPingPong builds the keepalive reply for timestamp.
func NewPingPong(timestamp int64) PingPong {
	return PingPong{ResponseType: ResponseTypePingPong, Timestamp: timestamp}
}
