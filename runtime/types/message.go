// Package types defines the data model shared by the relay: transcript
// utterances, turn requests, prompt messages, and outbound frames.
package types

// Message roles understood by chat-completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a prompt message list sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
