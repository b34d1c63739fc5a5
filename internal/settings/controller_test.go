package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/prefs"
	"fooddates/internal/reminder"
	"fooddates/internal/storage"
	"fooddates/internal/task/scheduler"
	logx "fooddates/pkg/logx"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeDaily struct {
	calls [][2]int
	err   error
}

func (f *fakeDaily) ScheduleDaily(h, m int, now time.Time) (reminder.Plan, error) {
	f.calls = append(f.calls, [2]int{h, m})
	if f.err != nil {
		return reminder.Plan{}, f.err
	}
	due := reminder.NextDue(h, m, now)
	return reminder.Plan{Due: due, InitialDelay: due.Sub(now), Period: reminder.Period}, nil
}

func newController(daily Scheduler, next NextFinder, bus eventbus.Bus) *Controller {
	p := prefs.New(storage.NewMemory(), prefs.Defaults(), logx.Nop())
	c := New(p, daily, next, Options{Identity: "check", Location: func() *time.Location { return time.UTC }}, logx.Nop(), bus)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestStateDefaults(t *testing.T) {
	t.Parallel()

	st, err := newController(&fakeDaily{}, nil, nil).State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.DateFormat != "%d/%m/%Y" || st.DatePreview != "01/06/2026" {
		t.Fatalf("date format = %q preview %q", st.DateFormat, st.DatePreview)
	}
	if st.NotificationTime.String() != "11:00" || st.Theme != prefs.ThemeSystem || st.DarkTheme || st.DynamicColors {
		t.Fatalf("unexpected defaults: %+v", st)
	}
}

func TestSetNotificationTimeSchedulesOnce(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := &fakeDaily{}
	c := newController(d, nil, bus)
	plan, err := c.SetNotificationTime(context.Background(), prefs.NotificationTime{Hour: 8, Minute: 30})
	if err != nil {
		t.Fatalf("SetNotificationTime: %v", err)
	}
	if len(d.calls) != 1 || d.calls[0] != [2]int{8, 30} {
		t.Fatalf("schedule calls = %v", d.calls)
	}
	if want := time.Date(2026, 6, 2, 8, 30, 0, 0, time.UTC); !plan.Due.Equal(want) {
		t.Fatalf("due = %s, want %s", plan.Due, want)
	}
	next := func() eventbus.Event {
		select {
		case e := <-events:
			return e
		case <-time.After(time.Second):
			t.Fatalf("missing event")
		}
		return eventbus.Event{}
	}
	if e := next(); e.Type != eventbus.TopicCheckScheduled {
		t.Fatalf("first event = %+v", e)
	} else if p, ok := e.Data.(reminder.Plan); !ok || !p.Due.Equal(plan.Due) {
		t.Fatalf("check.scheduled payload = %+v", e.Data)
	}
	e := next()
	st, ok := e.Data.(State)
	if e.Type != eventbus.TopicSettingsChanged || !ok || st.NotificationTime.String() != "08:30" {
		t.Fatalf("event = %+v", e)
	}
}

func TestSetNotificationTimeRejectsInvalid(t *testing.T) {
	t.Parallel()

	d := &fakeDaily{}
	c := newController(d, nil, nil)
	if _, err := c.SetNotificationTime(context.Background(), prefs.NotificationTime{Hour: 24}); !errors.Is(err, prefs.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
	if len(d.calls) != 0 {
		t.Fatalf("invalid time must not reschedule")
	}
}

func TestSetNotificationTimeSchedulerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("runner down")
	c := newController(&fakeDaily{err: boom}, nil, nil)
	if _, err := c.SetNotificationTime(context.Background(), prefs.NotificationTime{Hour: 9}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestOtherSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newController(&fakeDaily{}, nil, nil)
	if err := c.SetDateFormat(ctx, "%Y-%m-%d"); err != nil {
		t.Fatalf("SetDateFormat: %v", err)
	}
	if err := c.SetDateFormat(ctx, "plain"); !errors.Is(err, prefs.ErrInvalid) {
		t.Fatalf("bad format err = %v", err)
	}
	if err := c.SetThemeMode(ctx, prefs.ThemeDark); err != nil {
		t.Fatalf("SetThemeMode: %v", err)
	}
	on, err := c.ToggleDynamicColors(ctx)
	if err != nil || !on {
		t.Fatalf("toggle = %v, %v", on, err)
	}
	st, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.DatePreview != "2026-06-01" || st.Theme != prefs.ThemeDark || !st.DarkTheme || !st.DynamicColors {
		t.Fatalf("state = %+v", st)
	}
	if err := c.SetDynamicColors(ctx, false); err != nil {
		t.Fatalf("SetDynamicColors: %v", err)
	}
}

func TestRestoreUsesStoredTime(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(scheduler.Config{}, nil, logx.Nop(), nil)
	p := prefs.New(storage.NewMemory(), prefs.Defaults(), logx.Nop())
	daily := reminder.NewDaily(sched, func(context.Context) error { return nil }, reminder.Options{Identity: "check"}, logx.Nop())
	c := New(p, daily, sched, Options{Identity: "check"}, logx.Nop(), nil)

	ctx := context.Background()
	if _, err := c.SetNotificationTime(ctx, prefs.NotificationTime{Hour: 7, Minute: 5}); err != nil {
		t.Fatalf("SetNotificationTime: %v", err)
	}
	plan, err := c.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if plan.Due.Hour() != 7 || plan.Due.Minute() != 5 {
		t.Fatalf("restored due = %s", plan.Due)
	}

	n := 0
	for _, it := range sched.Snapshot().Schedules {
		if it.Name == "check" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("registrations = %d, want 1", n)
	}
	st, err := c.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.NextCheck.IsZero() || st.NextCheckIn == "" {
		t.Fatalf("next check missing: %+v", st)
	}
}
