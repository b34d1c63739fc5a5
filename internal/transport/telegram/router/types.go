package router

import (
	"context"
	"time"

	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string   // without the leading slash
	Aliases     []string // extra names, e.g. ["s"]
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0 uses the router default
	Handle      HandlerFunc
}

// CallbackRoute handles inline button presses whose data is
// "<Prefix>:<payload>" (or exactly "<Prefix>").
type CallbackRoute struct {
	Prefix  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string   // command name or "cb:<prefix>"
	Args    []string // message arguments after the command
	Payload string   // callback payload after "<prefix>:"
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// MessageRef is the message an inline button belongs to. ok is false for
// message updates.
func (r *Request) MessageRef() (kit.MessageRef, bool) {
	cb := r.Update.Callback
	if cb == nil {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}, true
}
