// Package prompt turns a call transcript into the chat-completion message
// list for one turn.
//
// Assembly is pure: the same turn always yields the same messages, nothing is
// cached between turns, and the caller's transcript is never modified.
package prompt

import (
	"github.com/AltairaLabs/callrelay/runtime/types"
)

// Assembler builds prompt message lists for a fixed persona.
type Assembler struct {
	system   string
	reminder string
}

// NewAssembler creates an Assembler. A nil persona selects DefaultPersona.
func NewAssembler(persona *Persona) *Assembler {
	if persona == nil {
		persona = DefaultPersona()
	}
	return &Assembler{
		system:   persona.SystemPrompt(),
		reminder: persona.Reminder,
	}
}

// Assemble returns the messages for turn: the system message, then one
// message per utterance in transcript order, then the re-prompt when the turn
// is a reminder.
func (a *Assembler) Assemble(turn *types.TurnRequest) []types.Message {
	size := len(turn.Transcript) + 1
	if turn.IsReminder() {
		size++
	}

	msgs := make([]types.Message, 0, size)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: a.system})
	msgs = append(msgs, ConvertTranscript(turn.Transcript)...)

	if turn.IsReminder() {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: a.reminder})
	}
	return msgs
}

// ConvertTranscript maps agent utterances to assistant messages and every
// other speaker to user messages.
func ConvertTranscript(transcript []types.Utterance) []types.Message {
	out := make([]types.Message, len(transcript))
	for i, u := range transcript {
		role := types.RoleUser
		if u.IsAgent() {
			role = types.RoleAssistant
		}
		out[i] = types.Message{Role: role, Content: u.Content}
	}
	return out
}
