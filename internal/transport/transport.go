// Package transport defines the narrow contract with the chat collaborator.
// The core only ever needs to send text, edit text, deliver a binary payload
// and present a structured choice; everything transport-specific (markup,
// command syntax, rate limiting) lives on the other side of this interface.
package transport

import "context"

// Target identifies where a job's status updates and final payload go: a chat
// plus an optional status message to edit in place.
type Target struct {
	ChatID    int64
	MessageID int
}

// Choice is one selectable option presented to a user. Token is an ephemeral
// query cache key, never a full URL.
type Choice struct {
	Label string
	Token string
}

// Messenger is the chat collaborator.
type Messenger interface {
	// SendText posts a new message and returns its ID for later edits.
	SendText(ctx context.Context, chatID int64, text string) (int, error)

	// EditText rewrites an existing message in place.
	EditText(ctx context.Context, chatID int64, messageID int, text string) error

	// SendFile delivers a binary payload with a caption.
	SendFile(ctx context.Context, chatID int64, filePath, caption string, audio bool) error

	// SendChoices presents a tagged-token choice list.
	SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) error
}
