package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/notifier"
	"fooddates/internal/prefs"
	"fooddates/internal/storage"
	"fooddates/internal/task/engine"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

// CheckStore is the part of storage.Store the checker needs.
type CheckStore interface {
	ListItems(ctx context.Context) ([]storage.Item, error)
	AppendCheckRun(ctx context.Context, r storage.CheckRun) error
}

type PrefsLoader interface {
	Load(ctx context.Context) (prefs.Preferences, error)
}

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type CheckerConfig struct {
	// WarnDays counts days after today that are "soon". 0 means 1.
	WarnDays int
	Channel  string
	Target   kit.ChatTarget
	// Location defines "today". nil means time.Local.
	Location *time.Location
}

// CheckEvent is the payload of check.finished bus events.
type CheckEvent struct {
	At       time.Time     `json:"at"`
	Expired  int           `json:"expired"`
	Today    int           `json:"today"`
	Soon     int           `json:"soon"`
	Notified bool          `json:"notified"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}

// Checker is the job run once per period by the task runner.
type Checker struct {
	store    CheckStore
	prefs    PrefsLoader
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu  sync.Mutex
	cfg CheckerConfig
}

func NewChecker(store CheckStore, p PrefsLoader, n Notifier, cfg CheckerConfig, log logx.Logger, bus eventbus.Bus) *Checker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Checker{
		store:    store,
		prefs:    p,
		notifier: n,
		bus:      bus,
		log:      log.With(logx.String("comp", "expiry")),
		now:      time.Now,
		cfg:      cfg,
	}
}

func (c *Checker) Apply(cfg CheckerConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Checker) config() CheckerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.cfg
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// Run is the scheduled job: Check followed by bookkeeping.
func (c *Checker) Run(ctx context.Context) error {
	_, err := c.Check(ctx)
	return err
}

// Check classifies every item, sends one notification when any bucket is
// non-empty and records the run.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	start := c.now()
	cfg := c.config()

	rep, notified, err := c.check(ctx, cfg, start)

	run := storage.CheckRun{
		At:       start.UTC(),
		Expired:  len(rep.Expired),
		Today:    len(rep.DueToday),
		Soon:     len(rep.Soon),
		Notified: notified,
		TookMS:   time.Since(start).Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if rerr := c.store.AppendCheckRun(ctx, run); rerr != nil {
		c.log.Warn("check run not recorded", logx.Err(rerr))
	}
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TopicCheckFinished, Data: CheckEvent{
			At:       start,
			Expired:  run.Expired,
			Today:    run.Today,
			Soon:     run.Soon,
			Notified: notified,
			Took:     time.Since(start),
			Error:    run.Error,
		}})
	}

	fields := []logx.Field{
		logx.Int("expired", run.Expired),
		logx.Int("today", run.Today),
		logx.Int("soon", run.Soon),
		logx.Bool("notified", notified),
	}
	if err != nil {
		c.log.Warn("expiration check failed", append(fields, logx.Err(err))...)
		return rep, err
	}
	c.log.Info("expiration check finished", fields...)
	return rep, nil
}

// Tally classifies every item without notifying or recording a run.
func (c *Checker) Tally(ctx context.Context) (Report, error) {
	cfg := c.config()
	items, err := c.store.ListItems(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list items: %w", err)
	}
	return Classify(items, c.now().In(cfg.Location), cfg.WarnDays), nil
}

func (c *Checker) check(ctx context.Context, cfg CheckerConfig, now time.Time) (Report, bool, error) {
	items, err := c.store.ListItems(ctx)
	if err != nil {
		return Report{}, false, fmt.Errorf("list items: %w", err)
	}
	p, err := c.prefs.Load(ctx)
	if err != nil {
		return Report{}, false, fmt.Errorf("load preferences: %w", err)
	}

	rep := Classify(items, now.In(cfg.Location), cfg.WarnDays)
	if rep.Empty() {
		return rep, false, nil
	}

	n := kit.Notification{
		Channel:  cfg.Channel,
		Priority: priorityFor(rep),
		Target:   cfg.Target,
		Text:     rep.Message(p.DateFormat),
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		if errors.Is(err, notifier.ErrDisabled) {
			// retrying cannot help until config changes
			return rep, false, engine.NoRetry(err)
		}
		return rep, false, fmt.Errorf("notify: %w", err)
	}
	return rep, true, nil
}

func priorityFor(r Report) kit.Priority {
	switch {
	case len(r.Expired) > 0:
		return kit.PriorityWarn
	case len(r.DueToday) > 0:
		return kit.PriorityInfo
	default:
		return kit.PriorityLow
	}
}
