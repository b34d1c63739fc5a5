// Package transport defines the chat-platform neutral types shared by the
// router, the notifier and the adapters.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Delivery channels a Notification can name.
const (
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event. Exactly one of Message and Callback is set.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 if none
	FromID   int64
	Text     string
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
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

type Button struct {
	Text string
	Data string // returned as Callback.Data
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       [][]Button // inline keyboard rows
}

// Priority orders notifications and picks their marker.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityInfo   Priority = 5
	PriorityWarn   Priority = 7
	PriorityUrgent Priority = 9
)

// Marker is the emoji prefixed to a notification of priority p.
func (p Priority) Marker() string {
	switch {
	case p >= PriorityUrgent:
		return "🚨"
	case p >= PriorityWarn:
		return "⚠️"
	case p >= PriorityInfo:
		return "ℹ️"
	default:
		return ""
	}
}

type Notification struct {
	Channel  string
	Priority Priority
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Adapter connects the app to one chat platform.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu (Telegram's "/" list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// RetryHint is implemented by send errors that carry a wait requested by
// the platform.
type RetryHint interface {
	RetryAfter() time.Duration
}

// RateLimited wraps err with a platform-requested wait.
func RateLimited(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &rateLimitedError{err: err, after: after}
}

type rateLimitedError struct {
	err   error
	after time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.after, e.err)
}
func (e *rateLimitedError) Unwrap() error             { return e.err }
func (e *rateLimitedError) RetryAfter() time.Duration { return e.after }
