package expiry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/notifier"
	"fooddates/internal/prefs"
	"fooddates/internal/storage"
	"fooddates/internal/task/engine"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func item(name string, exp time.Time) storage.Item {
	return storage.Item{ID: strings.ToLower(name) + "-0000", Name: name, ExpiresOn: exp}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 10, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
	items := []storage.Item{
		item("Yogurt", day(2026, 4, 9)),
		item("Milk", day(2026, 4, 10)),
		item("Eggs", day(2026, 4, 11)),
		item("Cheese", day(2026, 4, 12)),
		item("Rice", day(2027, 1, 1)),
	}

	tests := []struct {
		name                 string
		warnDays             int
		expired, today, soon int
		fresh                int
	}{
		{name: "default tomorrow", warnDays: 0, expired: 1, today: 1, soon: 1, fresh: 2},
		{name: "two days", warnDays: 2, expired: 1, today: 1, soon: 2, fresh: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Classify(items, now, tt.warnDays)
			if len(r.Expired) != tt.expired || len(r.DueToday) != tt.today || len(r.Soon) != tt.soon {
				t.Fatalf("buckets = %d/%d/%d, want %d/%d/%d", len(r.Expired), len(r.DueToday), len(r.Soon), tt.expired, tt.today, tt.soon)
			}
			if r.Fresh != tt.fresh {
				t.Fatalf("fresh = %d, want %d", r.Fresh, tt.fresh)
			}
			if !r.Today.Equal(day(2026, 4, 10)) {
				t.Fatalf("today = %s (local date must be used)", r.Today)
			}
		})
	}
}

func TestReportMessage(t *testing.T) {
	t.Parallel()

	r := Report{
		WarnDays: 1,
		Expired:  []storage.Item{item("Yogurt", day(2026, 4, 9))},
		Soon:     []storage.Item{item("Eggs", day(2026, 4, 11))},
	}
	want := "Expired:\n• Yogurt (2026-04-09)\n\nExpiring tomorrow:\n• Eggs (2026-04-11)"
	if got := r.Message("%Y-%m-%d"); got != want {
		t.Fatalf("Message =\n%s\nwant\n%s", got, want)
	}
	if Classify(nil, time.Now(), 1).Message("%d") != "" {
		t.Fatalf("empty report must render empty")
	}
}

func TestItemsAddFindRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewItems(storage.NewMemory(), logx.Nop())

	a, err := s.Add(ctx, "  Greek   yogurt ", time.Date(2026, 4, 9, 18, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Name != "Greek yogurt" || !a.ExpiresOn.Equal(day(2026, 4, 9)) || len(a.ID) != 36 {
		t.Fatalf("unexpected item: %+v", a)
	}
	if _, err := s.Add(ctx, "   ", time.Now()); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("blank name err = %v", err)
	}
	if _, err := s.Add(ctx, "x", time.Time{}); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("zero date err = %v", err)
	}

	got, err := s.Find(ctx, ShortID(a.ID))
	if err != nil || got.ID != a.ID {
		t.Fatalf("Find by prefix = %+v, %v", got, err)
	}
	if _, err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Remove(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Remove err = %v", err)
	}
}

func TestItemsAmbiguousPrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	for _, id := range []string{"abc1", "abc2"} {
		if err := st.PutItem(ctx, storage.Item{ID: id, Name: id, ExpiresOn: day(2026, 1, 1)}); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}
	s := NewItems(st, logx.Nop())
	if _, err := s.Find(ctx, "abc"); !errors.Is(err, ErrAmbiguousID) {
		t.Fatalf("err = %v, want ErrAmbiguousID", err)
	}
	if it, err := s.Find(ctx, "ABC2"); err != nil || it.ID != "abc2" {
		t.Fatalf("Find = %+v, %v", it, err)
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func newChecker(t *testing.T, st storage.Store, n Notifier, bus eventbus.Bus) *Checker {
	t.Helper()
	p := prefs.New(st, prefs.Defaults(), logx.Nop())
	c := NewChecker(st, p, n, CheckerConfig{Channel: "telegram", Target: kit.ChatTarget{ChatID: 7}, Location: time.UTC}, logx.Nop(), bus)
	c.now = func() time.Time { return time.Date(2026, 4, 10, 11, 0, 0, 0, time.UTC) }
	return c
}

func TestCheckerNotifiesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.PutItem(ctx, item("Milk", day(2026, 4, 10)))
	_ = st.PutItem(ctx, item("Eggs", day(2026, 4, 11)))
	_ = st.PutItem(ctx, item("Rice", day(2027, 4, 11)))

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	n := &fakeNotifier{}
	c := newChecker(t, st, n, bus)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.sent))
	}
	if got := n.sent[0]; got.Target.ChatID != 7 || !strings.Contains(got.Text, "Milk (10/04/2026)") || strings.Contains(got.Text, "Rice") {
		t.Fatalf("unexpected notification: %+v", got)
	}

	run, ok, err := st.LastCheckRun(ctx)
	if err != nil || !ok || run.Today != 1 || run.Soon != 1 || !run.Notified {
		t.Fatalf("check run = %+v (%v, %v)", run, ok, err)
	}
	select {
	case e := <-events:
		if ev, ok := e.Data.(CheckEvent); e.Type != eventbus.TopicCheckFinished || !ok || !ev.Notified {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no check.finished event")
	}
}

func TestCheckerSilentWhenNothingDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.PutItem(ctx, item("Rice", day(2027, 4, 11)))

	n := &fakeNotifier{}
	if err := newChecker(t, st, n, nil).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent %+v", n.sent)
	}
}

func TestCheckerDisabledNotifierIsPermanent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.PutItem(ctx, item("Milk", day(2026, 4, 1)))

	err := newChecker(t, st, &fakeNotifier{err: notifier.ErrDisabled}, nil).Run(ctx)
	if !engine.IsNoRetry(err) || !errors.Is(err, notifier.ErrDisabled) {
		t.Fatalf("err = %v, want no-retry ErrDisabled", err)
	}
	run, _, _ := st.LastCheckRun(ctx)
	if run.Error == "" || run.Notified {
		t.Fatalf("failed run not recorded: %+v", run)
	}
}

func TestCheckerTallyDoesNotNotify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.PutItem(ctx, item("Yogurt", day(2026, 4, 2)))
	_ = st.PutItem(ctx, item("Milk", day(2026, 4, 10)))
	_ = st.PutItem(ctx, item("Eggs", day(2026, 4, 11)))
	_ = st.PutItem(ctx, item("Rice", day(2027, 4, 11)))

	n := &fakeNotifier{}
	rep, err := newChecker(t, st, n, nil).Tally(ctx)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if len(rep.Expired) != 1 || len(rep.DueToday) != 1 || len(rep.Soon) != 1 || rep.Fresh != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(n.sent) != 0 {
		t.Fatalf("Tally sent %+v", n.sent)
	}
	if _, ok, _ := st.LastCheckRun(ctx); ok {
		t.Fatalf("Tally recorded a check run")
	}
}
