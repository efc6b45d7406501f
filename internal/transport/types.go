package transport

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateCallback    UpdateKind = "callback"
	UpdateMembership  UpdateKind = "membership"
	UpdateInlineQuery UpdateKind = "inline_query"
)

type Update struct {
	Kind        UpdateKind
	Message     *Message
	Callback    *Callback
	Membership  *Membership
	InlineQuery *InlineQuery
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string // text, or caption when PhotoID is set
	Spans        []Span // formatting entities for Text
	PhotoID      string // largest photo size file id, "" if none
	IsGroup      bool

	// Set on replies so owners can capture a template via /import.
	ReplyTo *Message

	// Forward origin of this message, if it was forwarded from a chat
	// that exposes its origin.
	Origin *MessageRef

	// True when the message carries its own inline keyboard.
	HasKeyboard bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// Membership describes the bot's own membership change in a chat
// (added, promoted, kicked, ...).
type Membership struct {
	ChatID    int64
	ChatTitle string
	IsGroup   bool
	OldStatus string
	NewStatus string
}

type InlineQuery struct {
	ID     string
	FromID int64
	Query  string
}

// InlineResult is one article answer to an inline query.
type InlineResult struct {
	ID      string
	Title   string
	Text    string
	Spans   []Span
	Buttons ButtonLayout
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Span is a rich-text formatting annotation carried opaquely by
// offset/length. Offsets count UTF-16 code units, as Telegram does; the
// engine round-trips spans without interpreting them.
type Span struct {
	Type          string `json:"type"`
	Offset        int    `json:"offset"`
	Length        int    `json:"length"`
	URL           string `json:"url,omitempty"`
	Language      string `json:"language,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// Button layout is a tagged shape: a layout is rows, a row is buttons.
// Only URL buttons exist here; broadcast posts never need callbacks.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Row []Button

type ButtonLayout []Row

func (l ButtonLayout) Empty() bool {
	for _, row := range l {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	Buttons            ButtonLayout // URL button grid, adapter builds the native markup
	ReplyTo            int          // message id to reply to (0 = none)
	ReplyMarkupAdapter any          // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Notification struct {
	Channel  string // "telegram" now
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, spans []Span, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoID string, caption string, spans []Span, opt *SendOptions) (MessageRef, error)
	CopyMessage(ctx context.Context, to ChatTarget, src MessageRef, opt *SendOptions) (MessageRef, error)
	ForwardMessage(ctx context.Context, to ChatTarget, src MessageRef) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error

	// EditReplyMarkup replaces the inline keyboard on an existing message.
	// An empty layout removes it. Requires edit rights in the target chat.
	EditReplyMarkup(ctx context.Context, ref MessageRef, layout ButtonLayout) error

	DeleteMessage(ctx context.Context, ref MessageRef) error

	// ResolveChat resolves a public @username to its numeric chat id.
	ResolveChat(ctx context.Context, username string) (int64, error)

	AnswerCallback(ctx context.Context, callbackID string, text string) error
	AnswerInlineQuery(ctx context.Context, queryID string, results []InlineResult) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
