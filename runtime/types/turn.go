package types

// InteractionType is the inbound event discriminator.
type InteractionType string

// Inbound interaction types.
const (
	InteractionResponseRequired InteractionType = "response_required"
	InteractionReminderRequired InteractionType = "reminder_required"
	InteractionUpdateOnly       InteractionType = "update_only"
	InteractionPingPong         InteractionType = "ping_pong"
	InteractionCallDetails      InteractionType = "call_details"
)

// GreetingResponseID is the response id reserved for the session greeting.
const GreetingResponseID = 0

// TurnRequest asks the relay for one reply. ResponseID is assigned upstream,
// increases monotonically, and is unique per turn within a session.
type TurnRequest struct {
	InteractionType InteractionType `json:"interaction_type"`
	ResponseID      int             `json:"response_id"`
	Transcript      []Utterance     `json:"transcript"`
}

// IsReminder reports whether the turn was triggered by caller silence.
func (t *TurnRequest) IsReminder() bool {
	return t.InteractionType == InteractionReminderRequired
}

// Known reports whether it is one of the interaction types above.
func (it InteractionType) Known() bool {
	switch it {
	case InteractionResponseRequired, InteractionReminderRequired,
		InteractionUpdateOnly, InteractionPingPong, InteractionCallDetails:
		return true
	default:
		return false
	}
}

// RequiresResponse reports whether the interaction type owes the caller a reply.
func (it InteractionType) RequiresResponse() bool {
	return it == InteractionResponseRequired || it == InteractionReminderRequired
}
