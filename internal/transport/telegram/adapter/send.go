package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "fooddates/internal/transport"
)

// SendText sends text split into as many messages as the Bot API limit
// needs. The keyboard goes under the last part. The returned ref is the
// first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	parts := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(opt, to.ThreadID)
		if i < len(parts)-1 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, part, so)
		if err != nil {
			return first, apiError(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText replaces the text and keyboard of ref. An unchanged message is
// not an error. Text past the first message limit is sent as new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	parts := splitTelegramText(text, telegramTextLimit, opt.ParseMode)

	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(msg, parts[0], sendOptions(opt, 0)); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return apiError(err)
	}
	if len(parts) == 1 {
		return nil
	}
	rest := &kit.SendOptions{ParseMode: opt.ParseMode, DisablePreview: opt.DisablePreview}
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, strings.Join(parts[1:], "\n"), rest)
	return err
}

// AnswerCallback stops the button's loading indicator, optionally with a
// short toast.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return apiError(a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}))
}

func sendOptions(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
		ReplyMarkup:           inlineMarkup(opt.Keyboard),
	}
}

// apiError marks flood control replies with the wait Telegram asked for.
func apiError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return kit.RateLimited(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	return err
}
