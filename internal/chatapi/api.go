// Package chatapi defines the chat-messaging surface the dispatcher, media
// watcher, and supervisor program against: send/edit/delete messages and
// media, answer callbacks, resolve file URLs, and receive an update stream.
// The concrete Telegram implementation lives in internal/telegram; a second
// implementation could satisfy the same interface for another chat backend
// without touching any caller.
package chatapi

import "context"

// Button is one inline-keyboard button.
type Button struct {
	Text string
	Data string
}

// Command is one entry in a bot command menu (e.g. "/close", "close the session").
type Command struct {
	Name        string
	Description string
}

// BotInfo is the subset of get-me information the supervisor forwards as a
// BOT_INFO IPC message.
type BotInfo struct {
	FullName string
	Username string
}

// Voice describes an incoming voice or audio message.
type Voice struct {
	FileID   string
	Duration int
}

// Update is one inbound event from the chat backend: either a text message, a
// voice message, or a callback-query button click. Exactly one of the
// Text/Voice/Callback fields is meaningful, discriminated by Kind.
type Update struct {
	Kind UpdateKind

	ChatID    int64
	UserID    *int64 // nil when the update carries no identifiable sender
	Username  string
	MessageID int

	Text string

	Voice *Voice

	CallbackID        string // answer target for AnswerCallbackQuery
	CallbackData      string
	CallbackMessageID int
}

// UpdateKind discriminates Update's payload.
type UpdateKind int

const (
	UpdateText UpdateKind = iota
	UpdateVoice
	UpdateCallback
)

// API is the set of chat-backend operations the rest of the system consumes.
// Implementations must be safe for concurrent use.
type API interface {
	// Updates returns the channel of inbound updates. Start must be running
	// (or have been called) for it to produce anything.
	Updates() <-chan Update
	// Start begins receiving updates and blocks until ctx is cancelled or a
	// fatal error (e.g. a token conflict) occurs.
	Start(ctx context.Context) error

	SendMessage(ctx context.Context, chatID int64, text string) (messageID int, err error)
	SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]Button) (messageID int, err error)
	SendPhoto(ctx context.Context, chatID int64, path, caption string) (messageID int, err error)
	SendPhotoWithKeyboard(ctx context.Context, chatID int64, path, caption string, keyboard [][]Button) (messageID int, err error)
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
	SendAnimation(ctx context.Context, chatID int64, path, caption string) error
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	SendVoice(ctx context.Context, chatID int64, path, caption string) error
	SendAudio(ctx context.Context, chatID int64, path, caption string) error

	// EditMessageMedia replaces messageID's photo, re-attaching keyboard (nil
	// or empty clears any existing keyboard) so inline buttons survive
	// auto-refresh edits of the same message.
	EditMessageMedia(ctx context.Context, chatID int64, messageID int, photoPath string, keyboard [][]Button) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	AnswerCallbackQuery(ctx context.Context, callbackID string) error

	GetFileURL(ctx context.Context, fileID string) (string, error)
	DownloadFile(ctx context.Context, fileID, destPath string) error

	SetCommands(ctx context.Context, commands []Command) error
	GetMe(ctx context.Context) (BotInfo, error)
}
