package bot

import (
	"context"
	"errors"
)

// ErrNotModified is returned by Transport.Edit when the new content equals
// what the message already shows.
var ErrNotModified = errors.New("message is not modified")

// ParseMarkdown selects the transport's basic Markdown styling
const ParseMarkdown = "Markdown"

// Button is an inline option; Data is sent back in the callback
type Button struct {
	Text string
	Data string
}

// Message is the outbound content of a chat message
type Message struct {
	Text      string
	Buttons   [][]Button
	ParseMode string
}

// Update is one inbound event: either a text message or a button callback
type Update struct {
	UserID    int64
	ChatID    int64
	MessageID int

	// Text messages. Command is set, without the slash, for "/start" etc.
	Text    string
	Command string

	// Callbacks
	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is a button press
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Transport delivers messages to the chat platform
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	Answer(ctx context.Context, callbackID, text string) error
}
