package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/task/engine"
	logx "fooddates/pkg/logx"
)

func noop(context.Context) error { return nil }

func newStopped(now time.Time) *Service {
	s := New(Config{Enabled: true, Timezone: "UTC"}, nil, logx.Nop(), nil)
	s.now = func() time.Time { return now }
	return s
}

func TestPeriodicScheduleNext(t *testing.T) {
	t.Parallel()

	first := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	p := periodicSchedule{first: first, period: 24 * time.Hour}
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{name: "before first", at: first.Add(-5 * time.Hour), want: first},
		{name: "exactly first", at: first, want: first.Add(24 * time.Hour)},
		{name: "just after first", at: first.Add(3 * time.Millisecond), want: first.Add(24 * time.Hour)},
		{name: "days later", at: first.Add(72*time.Hour + time.Minute), want: first.Add(96 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Next(tt.at); !got.Equal(tt.want) {
				t.Fatalf("Next(%s) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}

func TestEnqueueUniquePeriodicReplaces(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	s := newStopped(now)

	if _, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "check", Period: 24 * time.Hour, InitialDelay: time.Hour, Job: noop}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	id2, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "check", Period: 24 * time.Hour, InitialDelay: 3 * time.Hour, Job: noop})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(snap.Schedules))
	}
	got := snap.Schedules[0]
	if got.ID != id2 {
		t.Fatalf("id = %q, want %q", got.ID, id2)
	}
	if want := now.Add(3 * time.Hour); !got.Next.Equal(want) {
		t.Fatalf("next = %s, want %s", got.Next, want)
	}
	if got.Period != 24*time.Hour || got.Kind != "periodic" {
		t.Fatalf("unexpected schedule: %+v", got)
	}
}

func TestEnqueueUniquePeriodicKeep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	s := newStopped(now)

	id1, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "check", Period: time.Hour, InitialDelay: time.Minute, Job: noop})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id2, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "check", Period: time.Hour, InitialDelay: 30 * time.Minute, Policy: ExistingKeep, Job: noop})
	if err != nil {
		t.Fatalf("keep: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("keep returned %q, want %q", id2, id1)
	}
	next, ok := s.Next("check")
	if !ok || !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("next = %s (%v), want %s", next, ok, now.Add(time.Minute))
	}
}

func TestEnqueueUniquePeriodicAnchor(t *testing.T) {
	t.Parallel()

	s := newStopped(time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	anchor := time.Date(2026, 3, 10, 9, 29, 59, 500, time.UTC)
	if _, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "a", Period: time.Hour, InitialDelay: time.Hour, Anchor: anchor, Job: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	next, _ := s.Next("a")
	if want := anchor.Add(time.Hour); !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
}

func TestEnqueueUniquePeriodicValidation(t *testing.T) {
	t.Parallel()

	s := newStopped(time.Now())
	bad := []PeriodicRequest{
		{Period: time.Hour, Job: noop},
		{Name: "x", Job: noop},
		{Name: "x", Period: time.Hour, InitialDelay: -time.Second, Job: noop},
		{Name: "x", Period: time.Hour},
	}
	for i, req := range bad {
		if _, err := s.EnqueueUniquePeriodic(req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: err = %v, want ErrInvalidRequest", i, err)
		}
	}
	if s.Has("x") {
		t.Fatalf("invalid request must not register")
	}
}

func TestEnqueueUniquePeriodicPublishes(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, nil, logx.Nop(), bus)
	if _, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "p", Period: time.Hour, Job: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	select {
	case e := <-events:
		info, ok := e.Data.(ScheduleInfo)
		if e.Type != eventbus.TopicScheduleAdded || !ok || info.Name != "p" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event")
	}
}

func TestPeriodicFiresThroughEngine(t *testing.T) {
	t.Parallel()

	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	defer eng.Stop(context.Background())

	s := New(Config{Enabled: true}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	_, err := s.EnqueueUniquePeriodic(PeriodicRequest{
		Name:         "tick",
		Period:       time.Hour,
		InitialDelay: 50 * time.Millisecond,
		Job: func(context.Context) error {
			if runs.Add(1) == 1 {
				done <- struct{}{}
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("periodic job did not fire")
	}
	next, ok := s.Next("tick")
	if !ok || time.Until(next) < 50*time.Minute {
		t.Fatalf("next = %s, want about an hour out", next)
	}
}

func TestNextWhileDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if _, err := s.EnqueueUniquePeriodic(PeriodicRequest{Name: "check", Period: 24 * time.Hour, InitialDelay: 20 * time.Millisecond, Job: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if at, ok := s.Next("check"); ok {
		t.Fatalf("Next = %s, want none while disabled", at)
	}
	if len(s.Snapshot().Schedules) != 1 {
		t.Fatalf("definition should be kept")
	}
}

func TestRemoveAndUpsertByName(t *testing.T) {
	t.Parallel()

	s := newStopped(time.Now())
	if _, err := s.AddCron("c", "*/5 * * * *", 0, noop); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if _, err := s.AddInterval("c", time.Minute, 0, noop); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if _, err := s.AddSchedule("d", "15 7 * * *", 0, noop); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 2 {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if snap.Schedules[0].Name != "c" || snap.Schedules[0].Kind != "interval" {
		t.Fatalf("upsert kept old def: %+v", snap.Schedules[0])
	}
	if !s.Remove("c") || s.Remove("c") {
		t.Fatalf("Remove should report true once")
	}
	if _, err := s.AddCron("bad", "not cron", 0, noop); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("bad cron err = %v", err)
	}
}
