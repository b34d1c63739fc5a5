// Package settings is the headless settings screen: it exposes the current
// settings as one State value and applies user actions to it.
package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/prefs"
	"fooddates/internal/reminder"
	logx "fooddates/pkg/logx"
)

// Scheduler registers the daily check. *reminder.Daily implements it.
type Scheduler interface {
	ScheduleDaily(hour, minute int, now time.Time) (reminder.Plan, error)
}

// NextFinder reports when a named schedule fires next.
type NextFinder interface {
	Next(name string) (time.Time, bool)
}

// State is everything the settings screen shows.
type State struct {
	DateFormat       string
	DatePreview      string
	NotificationTime prefs.NotificationTime
	Theme            prefs.ThemeMode
	// DarkTheme is the effective theme assuming a light system theme.
	DarkTheme     bool
	DynamicColors bool
	NextCheck     time.Time
	NextCheckIn   string
}

type Controller struct {
	prefs    *prefs.Store
	daily    Scheduler
	next     NextFinder
	identity string
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
	loc      func() *time.Location

	// serializes actions; they arrive from one chat but several goroutines
	mu sync.Mutex
}

type Options struct {
	// Identity is the registration name used to look up the next check.
	Identity string
	// Location returns the zone for "now". nil means time.Local.
	Location func() *time.Location
}

func New(p *prefs.Store, daily Scheduler, next NextFinder, opt Options, log logx.Logger, bus eventbus.Bus) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := opt.Location
	if loc == nil {
		loc = func() *time.Location { return time.Local }
	}
	return &Controller{
		prefs:    p,
		daily:    daily,
		next:     next,
		identity: opt.Identity,
		bus:      bus,
		log:      log.With(logx.String("comp", "settings")),
		now:      time.Now,
		loc:      loc,
	}
}

func (c *Controller) clock() time.Time { return c.now().In(c.loc()) }

// State loads the current settings.
func (c *Controller) State(ctx context.Context) (State, error) {
	p, err := c.prefs.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("load settings: %w", err)
	}
	now := c.clock()
	st := State{
		DateFormat:       p.DateFormat,
		DatePreview:      prefs.FormatDate(p.DateFormat, now),
		NotificationTime: p.NotificationTime,
		Theme:            p.ThemeMode,
		DarkTheme:        p.ThemeMode.Dark(false),
		DynamicColors:    p.DynamicColors,
	}
	if c.next != nil && c.identity != "" {
		if at, ok := c.next.Next(c.identity); ok {
			st.NextCheck = at
			if d := at.Sub(now); d > 0 {
				st.NextCheckIn = reminder.FormatDelay(d)
			}
		}
	}
	return st, nil
}

// SetNotificationTime stores t and reschedules the daily check.
func (c *Controller) SetNotificationTime(ctx context.Context, t prefs.NotificationTime) (reminder.Plan, error) {
	if err := t.Validate(); err != nil {
		return reminder.Plan{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.prefs.SetNotificationTime(ctx, t); err != nil {
		return reminder.Plan{}, err
	}
	plan, err := c.daily.ScheduleDaily(t.Hour, t.Minute, c.clock())
	if err != nil {
		return reminder.Plan{}, err
	}
	c.log.Info("notification time changed", logx.String("time", t.String()), logx.Time("due", plan.Due))
	c.scheduled(plan)
	c.changed(ctx)
	return plan, nil
}

func (c *Controller) SetDateFormat(ctx context.Context, pattern string) error {
	return c.apply(ctx, "date_format", func() error { return c.prefs.SetDateFormat(ctx, pattern) })
}

func (c *Controller) SetThemeMode(ctx context.Context, m prefs.ThemeMode) error {
	return c.apply(ctx, "theme_mode", func() error { return c.prefs.SetThemeMode(ctx, m) })
}

func (c *Controller) SetDynamicColors(ctx context.Context, on bool) error {
	return c.apply(ctx, "dynamic_colors", func() error { return c.prefs.SetDynamicColors(ctx, on) })
}

// ToggleDynamicColors flips the flag and returns the new value.
func (c *Controller) ToggleDynamicColors(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.prefs.Load(ctx)
	if err != nil {
		return false, err
	}
	on := !p.DynamicColors
	if err := c.prefs.SetDynamicColors(ctx, on); err != nil {
		return false, err
	}
	c.changed(ctx)
	return on, nil
}

// Restore registers the daily check from the stored time. Call it once at
// startup and after config reloads.
func (c *Controller) Restore(ctx context.Context) (reminder.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.prefs.Load(ctx)
	if err != nil {
		return reminder.Plan{}, fmt.Errorf("load settings: %w", err)
	}
	t := p.NotificationTime
	plan, err := c.daily.ScheduleDaily(t.Hour, t.Minute, c.clock())
	if err != nil {
		return reminder.Plan{}, err
	}
	c.scheduled(plan)
	return plan, nil
}

func (c *Controller) scheduled(plan reminder.Plan) {
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TopicCheckScheduled, Data: plan})
	}
}

func (c *Controller) apply(ctx context.Context, what string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	c.log.Info("setting changed", logx.String("setting", what))
	c.changed(ctx)
	return nil
}

// changed publishes the new state. Call with c.mu held.
func (c *Controller) changed(ctx context.Context) {
	if c.bus == nil {
		return
	}
	st, err := c.State(ctx)
	if err != nil {
		c.log.Warn("settings state unavailable", logx.Err(err))
		return
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.TopicSettingsChanged, Data: st})
}
