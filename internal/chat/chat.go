// Package chat defines the contract between the assistant and a chat
// transport: the incoming events it reacts to and the outgoing message
// operations it performs.
package chat

import "context"

// MessageHandle identifies a sent message within its conversation.
type MessageHandle string

// ControlStyle hints how a transport renders a control.
type ControlStyle int

const (
	StylePrimary ControlStyle = iota
	StyleSecondary
	StyleDanger
)

// Control is an interactive button carrying an action token.
type Control struct {
	Label string
	Token string
	Style ControlStyle
}

// Source identifies who sent an event and where.
type Source struct {
	ConversationID string
	UserID         string
	Username       string
}

// TextEvent is a plain text message.
type TextEvent struct {
	Source
	Text string
}

// AudioRef points at a downloadable voice recording.
type AudioRef struct {
	URL         string
	Filename    string
	ContentType string
	Size        int
}

// VoiceEvent is a voice message.
type VoiceEvent struct {
	Source
	Audio AudioRef
}

// PhotoEvent is an image message. Its contents are not inspected.
type PhotoEvent struct {
	Source
	Caption string
}

// ButtonEvent is a press on a control.
type ButtonEvent struct {
	Source
	Token string
	// Message is the handle of the message that carries the control.
	Message MessageHandle
}

// Command is an explicit user command such as "nextday".
type Command struct {
	Source
	Name string
	Args string
}

// Transport sends, edits and deletes messages. Implementations report
// failures; callers treat retraction failures as non-fatal.
type Transport interface {
	SendText(ctx context.Context, conversationID, text string, controls ...Control) (MessageHandle, error)
	EditText(ctx context.Context, conversationID string, msg MessageHandle, text string, controls ...Control) error
	DeleteMessage(ctx context.Context, conversationID string, msg MessageHandle) error
}
