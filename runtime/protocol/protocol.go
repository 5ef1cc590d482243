// Package protocol decodes inbound events from the voice front end's custom
// LLM WebSocket and validates them against an embedded JSON schema.
package protocol

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AltairaLabs/callrelay/runtime/types"
)

//go:embed schema/inbound_event.json
var inboundSchemaJSON []byte

// ErrInvalidEvent is returned for inbound messages that are not valid events.
var ErrInvalidEvent = errors.New("invalid inbound event")

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func inboundSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(inboundSchemaJSON))
	})
	return schema, schemaErr
}

// CallDetails carries call metadata sent once at the start of a call.
type CallDetails struct {
	CallID    string            `json:"call_id"`
	AgentID   string            `json:"agent_id,omitempty"`
	FromNum   string            `json:"from_number,omitempty"`
	ToNum     string            `json:"to_number,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	Variables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// Event is one decoded inbound message.
type Event struct {
	InteractionType types.InteractionType `json:"interaction_type"`
	ResponseID      int                   `json:"response_id"`
	Transcript      []types.Utterance     `json:"transcript"`
	Timestamp       int64                 `json:"timestamp"`
	Call            *CallDetails          `json:"call,omitempty"`
}

// Turn returns the turn request carried by a response or reminder event.
func (e *Event) Turn() *types.TurnRequest {
	return &types.TurnRequest{
		InteractionType: e.InteractionType,
		ResponseID:      e.ResponseID,
		Transcript:      e.Transcript,
	}
}

// ValidationError lists the schema violations of a rejected event.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidEvent, strings.Join(e.Violations, "; "))
}

// Unwrap makes errors.Is(err, ErrInvalidEvent) hold.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}

// Decode validates data and decodes it into an Event.
func Decode(data []byte) (*Event, error) {
	s, err := inboundSchema()
	if err != nil {
		return nil, fmt.Errorf("load inbound schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			violations = append(violations, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
		}
		return nil, &ValidationError{Violations: violations}
	}

	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return &evt, nil
}

// UnknownInteractionType labels events whose type is absent or unrecognised.
const UnknownInteractionType = "unknown"

// InteractionTypeOf extracts interaction_type without validation, for
// labelling rejected events. Only the known types are returned as-is so the
// result is safe as a metric label; anything else is UnknownInteractionType.
func InteractionTypeOf(data []byte) string {
	var head struct {
		InteractionType types.InteractionType `json:"interaction_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || !head.InteractionType.Known() {
		return UnknownInteractionType
	}
	return string(head.InteractionType)
}
