package types

import "strings"

// Speaker identifies who produced an utterance in a call transcript.
type Speaker string

// Transcript speakers. The voice front end sends "user" for the caller;
// "caller" is accepted as an alias.
const (
	SpeakerAgent  Speaker = "agent"
	SpeakerUser   Speaker = "user"
	SpeakerCaller Speaker = "caller"
)

// Utterance is one transcribed line of the call. Utterances are produced by
// the transcription side and never modified by the relay.
type Utterance struct {
	Role    Speaker `json:"role"`
	Content string  `json:"content"`
}

// IsAgent reports whether the utterance was spoken by the agent.
func (u Utterance) IsAgent() bool {
	return strings.EqualFold(string(u.Role), string(SpeakerAgent))
}
