package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fooddates/internal/expiry"
	"fooddates/internal/prefs"
	"fooddates/internal/reminder"
	"fooddates/internal/settings"
	"fooddates/internal/storage"
	kit "fooddates/internal/transport"
)

type fakeSettings struct {
	st      settings.State
	setTime []prefs.NotificationTime
}

func (f *fakeSettings) State(context.Context) (settings.State, error) { return f.st, nil }

func (f *fakeSettings) SetNotificationTime(_ context.Context, t prefs.NotificationTime) (reminder.Plan, error) {
	f.setTime = append(f.setTime, t)
	f.st.NotificationTime = t
	return reminder.Plan{InitialDelay: 2*time.Hour + 5*time.Minute}, nil
}

func (f *fakeSettings) SetDateFormat(_ context.Context, p string) error {
	if err := prefs.ValidateDateFormat(p); err != nil {
		return err
	}
	f.st.DateFormat = p
	return nil
}

func (f *fakeSettings) SetThemeMode(_ context.Context, m prefs.ThemeMode) error {
	f.st.Theme = m
	return nil
}

func (f *fakeSettings) SetDynamicColors(_ context.Context, on bool) error {
	f.st.DynamicColors = on
	return nil
}

func (f *fakeSettings) ToggleDynamicColors(context.Context) (bool, error) {
	f.st.DynamicColors = !f.st.DynamicColors
	return f.st.DynamicColors, nil
}

type fakeItems struct {
	items []storage.Item
}

func (f *fakeItems) Add(_ context.Context, name string, on time.Time) (storage.Item, error) {
	if strings.TrimSpace(name) == "" {
		return storage.Item{}, expiry.ErrInvalidItem
	}
	it := storage.Item{ID: "0123456789abcdef", Name: name, ExpiresOn: on}
	f.items = append(f.items, it)
	return it, nil
}

func (f *fakeItems) List(context.Context) ([]storage.Item, error) { return f.items, nil }

func (f *fakeItems) Remove(_ context.Context, id string) (storage.Item, error) {
	for i, it := range f.items {
		if strings.HasPrefix(it.ID, id) {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return it, nil
		}
	}
	return storage.Item{}, storage.ErrNotFound
}

type fakeCheck struct{ rep expiry.Report }

func (f *fakeCheck) Check(context.Context) (expiry.Report, error) { return f.rep, nil }

func newHandlers() (*Handlers, *fakeSettings, *fakeItems) {
	fs := &fakeSettings{st: settings.State{
		DateFormat:       prefs.DateFormats()[0],
		NotificationTime: prefs.NotificationTime{Hour: 11},
		Theme:            prefs.ThemeSystem,
	}}
	fi := &fakeItems{}
	h := &Handlers{
		Settings: fs,
		Items:    fi,
		Checker:  &fakeCheck{},
		Announce: func() bool { return true },
		Location: func() *time.Location { return time.UTC },
	}
	return h, fs, fi
}

func newReq(ad kit.Adapter, args ...string) *Request {
	return &Request{Chat: kit.ChatTarget{ChatID: 42}, Args: args, Adapter: ad}
}

func TestCmdTimeAnnouncesDelay(t *testing.T) {
	t.Parallel()
	h, fs, _ := newHandlers()
	ad := newFakeAdapter()
	if err := h.cmdTime(context.Background(), newReq(ad, "08:30")); err != nil {
		t.Fatalf("cmdTime: %v", err)
	}
	if len(fs.setTime) != 1 || fs.setTime[0] != (prefs.NotificationTime{Hour: 8, Minute: 30}) {
		t.Fatalf("setTime=%v", fs.setTime)
	}
	got := ad.lastSent()
	if !strings.Contains(got, "08:30") || !strings.Contains(got, "Notification in 2 hours 5 minutes") {
		t.Fatalf("reply=%q", got)
	}
}

func TestCmdTimeRejectsBadInput(t *testing.T) {
	t.Parallel()
	h, fs, _ := newHandlers()
	for _, args := range [][]string{nil, {"25:00"}, {"8"}, {"08:30", "x"}} {
		err := h.cmdTime(context.Background(), newReq(newFakeAdapter(), args...))
		var ue *UserError
		if !errors.As(err, &ue) {
			t.Fatalf("args %q: want UserError, got %v", args, err)
		}
	}
	if len(fs.setTime) != 0 {
		t.Fatalf("bad input must not reschedule")
	}
}

func TestCmdDateFormatByIndexAndPattern(t *testing.T) {
	t.Parallel()
	h, fs, _ := newHandlers()
	formats := prefs.DateFormats()
	if err := h.cmdDateFormat(context.Background(), newReq(newFakeAdapter(), "2")); err != nil {
		t.Fatalf("index: %v", err)
	}
	if fs.st.DateFormat != formats[1] {
		t.Fatalf("format=%q want %q", fs.st.DateFormat, formats[1])
	}
	if err := h.cmdDateFormat(context.Background(), newReq(newFakeAdapter(), "%Y.%m.%d")); err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if fs.st.DateFormat != "%Y.%m.%d" {
		t.Fatalf("format=%q", fs.st.DateFormat)
	}
	err := h.cmdDateFormat(context.Background(), newReq(newFakeAdapter(), "99"))
	var ue *UserError
	if !errors.As(err, &ue) {
		t.Fatalf("want UserError, got %v", err)
	}
}

func TestCmdThemeAndColors(t *testing.T) {
	t.Parallel()
	h, fs, _ := newHandlers()
	if err := h.cmdTheme(context.Background(), newReq(newFakeAdapter(), "dark")); err != nil {
		t.Fatalf("theme: %v", err)
	}
	if fs.st.Theme != prefs.ThemeDark {
		t.Fatalf("theme=%v", fs.st.Theme)
	}
	err := h.cmdTheme(context.Background(), newReq(newFakeAdapter(), "purple"))
	var ue *UserError
	if !errors.As(err, &ue) || !errors.Is(err, prefs.ErrInvalid) {
		t.Fatalf("want user-facing ErrInvalid, got %v", err)
	}

	ad := newFakeAdapter()
	if err := h.cmdColors(context.Background(), newReq(ad)); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !fs.st.DynamicColors || ad.lastSent() != "Dynamic colors on." {
		t.Fatalf("colors=%v reply=%q", fs.st.DynamicColors, ad.lastSent())
	}
	if err := h.cmdColors(context.Background(), newReq(ad, "off")); err != nil {
		t.Fatalf("off: %v", err)
	}
	if fs.st.DynamicColors {
		t.Fatalf("colors should be off")
	}
}

func TestParseItemDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 4, 10, 22, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2026-05-01", "2026-05-01", true},
		{"today", "2026-04-10", true},
		{"Tomorrow", "2026-04-11", true},
		{"+3", "2026-04-13", true},
		{"+3d", "2026-04-13", true},
		{"+x", "", false},
		{"01/05/2026", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseItemDate(tc.in, now)
			if (err == nil) != tc.ok {
				t.Fatalf("err=%v ok=%v", err, tc.ok)
			}
			if tc.ok && got.Format(storage.DateLayout) != tc.want {
				t.Fatalf("got %s want %s", got.Format(storage.DateLayout), tc.want)
			}
		})
	}
}

func TestItemCommands(t *testing.T) {
	t.Parallel()
	h, _, fi := newHandlers()
	ad := newFakeAdapter()
	ctx := context.Background()

	if err := h.cmdAdd(ctx, newReq(ad, "greek", "yogurt", "2026-05-01")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fi.items) != 1 || fi.items[0].Name != "greek yogurt" {
		t.Fatalf("items=%+v", fi.items)
	}
	if got := ad.lastSent(); !strings.Contains(got, "01234567") {
		t.Fatalf("add reply=%q", got)
	}

	if err := h.cmdList(ctx, newReq(ad)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ad.lastSent(); !strings.Contains(got, "greek yogurt") {
		t.Fatalf("list reply=%q", got)
	}

	err := h.cmdRemove(ctx, newReq(ad, "zzz"))
	var ue *UserError
	if !errors.As(err, &ue) {
		t.Fatalf("want UserError, got %v", err)
	}
	if err := h.cmdRemove(ctx, newReq(ad, "0123")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(fi.items) != 0 {
		t.Fatalf("item not removed")
	}
	if err := h.cmdList(ctx, newReq(ad)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ad.lastSent(); !strings.Contains(got, "No items") {
		t.Fatalf("empty list reply=%q", got)
	}
}

func TestSettingsCardAndCallbacks(t *testing.T) {
	t.Parallel()
	h, fs, _ := newHandlers()
	ad := newFakeAdapter()
	ctx := context.Background()

	if err := h.cmdSettings(ctx, newReq(ad)); err != nil {
		t.Fatalf("settings: %v", err)
	}
	ad.mu.Lock()
	card := ad.sent[len(ad.sent)-1]
	ad.mu.Unlock()
	if !strings.Contains(card.text, "11:00") || !strings.Contains(card.text, "System") {
		t.Fatalf("card=%q", card.text)
	}
	if card.opt == nil || len(card.opt.Keyboard) < 2 || len(card.opt.Keyboard[0]) != 3 {
		t.Fatalf("keyboard=%+v", card.opt)
	}
	if card.opt.Keyboard[0][1].Data != "theme:dark" {
		t.Fatalf("dark button data=%q", card.opt.Keyboard[0][1].Data)
	}

	cbReq := &Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ChatID: 42, MessageID: 5}},
		Chat:    kit.ChatTarget{ChatID: 42},
		Payload: "light",
		Adapter: ad,
	}
	if err := h.cbTheme(ctx, cbReq); err != nil {
		t.Fatalf("cbTheme: %v", err)
	}
	if fs.st.Theme != prefs.ThemeLight {
		t.Fatalf("theme=%v", fs.st.Theme)
	}
	if err := h.cbColors(ctx, cbReq); err != nil {
		t.Fatalf("cbColors: %v", err)
	}
	cbReq.Payload = "1"
	if err := h.cbDateFormat(ctx, cbReq); err != nil {
		t.Fatalf("cbDateFormat: %v", err)
	}
	if fs.st.DateFormat != prefs.DateFormats()[1] || !fs.st.DynamicColors {
		t.Fatalf("state=%+v", fs.st)
	}
	ad.mu.Lock()
	edits := len(ad.edits)
	ad.mu.Unlock()
	if edits != 3 {
		t.Fatalf("edits=%d want 3", edits)
	}
}
