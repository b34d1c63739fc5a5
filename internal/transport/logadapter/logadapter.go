// Package logadapter is a transport that writes outgoing messages to the
// log. It stands in for Telegram when no bot token is configured.
package logadapter

import (
	"context"
	"sync/atomic"

	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

type Adapter struct {
	log logx.Logger
	seq atomic.Int64
}

func New(log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{log: log.With(logx.String("comp", "transport.log"))}
}

// Start never produces updates.
func (a *Adapter) Start(context.Context, chan<- kit.Update) error { return nil }

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	id := int(a.seq.Add(1))
	fields := []logx.Field{logx.Int64("chat_id", to.ChatID), logx.Int("msg_id", id), logx.String("text", text)}
	if opt != nil && len(opt.Keyboard) > 0 {
		fields = append(fields, logx.Int("keyboard_rows", len(opt.Keyboard)))
	}
	a.log.Info("message", fields...)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.log.Info("message edited", logx.Int64("chat_id", ref.ChatID), logx.Int("msg_id", ref.MessageID), logx.String("text", text))
	return nil
}

func (a *Adapter) AnswerCallback(context.Context, string, string) error { return nil }
