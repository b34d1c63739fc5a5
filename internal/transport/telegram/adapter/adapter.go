// Package adapter connects the transport types to the Telegram Bot API via
// telebot long polling.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "fooddates/internal/runtime/supervisor"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	dropReportEvery    = 5 * time.Second
	stopGrace          = 2 * time.Second
)

var errPollerExited = errors.New("telegram poller exited")

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter is a kit.Adapter backed by a telebot long poller.
type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	// out is nil while stopped; handlers drop updates then.
	out     atomic.Pointer[chan<- kit.Update]
	dropped atomic.Int64

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	menuMu  sync.Mutex
	menuSum uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram.adapter"))
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: poll},
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{log: log, bot: b}
	b.Handle(tele.OnText, a.onText)
	b.Handle(tele.OnCallback, a.onCallback)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	a.forward(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		FromID:   m.Sender.ID,
		Text:     m.Text,
	}})
	return nil
}

func (a *Adapter) onCallback(c tele.Context) error {
	cb, m := c.Callback(), c.Message()
	if cb == nil || cb.Sender == nil || m == nil || m.Chat == nil {
		return nil
	}
	a.forward(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID:        cb.ID,
		FromID:    cb.Sender.ID,
		ChatID:    m.Chat.ID,
		ThreadID:  m.ThreadID,
		MessageID: m.ID,
		Data:      cb.Data,
	}})
	return nil
}

// forward never blocks the poller. Updates the router cannot take are
// counted and reported by the drop reporter.
func (a *Adapter) forward(up kit.Update) {
	out := a.out.Load()
	if out == nil {
		return
	}
	select {
	case *out <- up:
	default:
		a.dropped.Add(1)
	}
}

// Start begins long polling and delivers updates to out until Stop or ctx
// is done.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup = sup

	sup.Go0("updates.drops", func(c context.Context) { a.reportDrops(c, cap(out)) })
	sup.Go0("telebot.stop", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errPollerExited
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) reportDrops(ctx context.Context, capacity int) {
	t := time.NewTicker(dropReportEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.flushDrops(capacity)
			return
		case <-t.C:
			a.flushDrops(capacity)
		}
	}
}

func (a *Adapter) flushDrops(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("updates dropped, router busy", logx.Int64("count", n), logx.Int("queue", capacity))
	}
}

// Stop ends polling. A getUpdates call in flight is given stopGrace (or
// what is left of ctx) before Stop returns without it.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	grace := stopGrace
	if dl, ok := ctx.Deadline(); ok {
		grace = min(grace, time.Until(dl))
	}
	wctx, cancel := context.WithTimeout(ctx, max(grace, 0))
	defer cancel()
	switch err := sup.Wait(wctx); {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("polling did not stop in time", logx.Duration("grace", grace))
	default:
		a.log.Debug("polling stopped with error", logx.Err(err))
	}
	return nil
}
