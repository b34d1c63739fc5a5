package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

type sent struct {
	chat kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	edits   []sent
	answers []string
	notify  chan struct{}
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{notify: make(chan struct{}, 64)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sent{chat: to, text: text, opt: opt})
	n := len(f.sent)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: n}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	f.edits = append(f.edits, sent{chat: kit.ChatTarget{ChatID: ref.ChatID}, text: text, opt: opt})
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakeAdapter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for adapter call")
	}
}

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: 42, FromID: from, Text: text}}
}

func startRouter(t *testing.T, m *CommandManager) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan kit.Update)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, ch)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// wait until the loop accepts jobs
	deadline := time.Now().Add(2 * time.Second)
	for m.Supervisor() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("dispatcher did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ch
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/list", []string{"/list"}},
		{"/add milk 2026-04-10", []string{"/add", "milk", "2026-04-10"}},
		{`/add "greek yogurt" +3`, []string{"/add", "greek yogurt", "+3"}},
		{`/add 'a b'  c`, []string{"/add", "a b", "c"}},
		{`/add a\ b`, []string{"/add", "a b"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got := tokenizeCommandLine(tc.in)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("tokenize(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCommandWordAndSanitize(t *testing.T) {
	t.Parallel()
	if got := commandWord("/Time@FoodBot"); got != "time" {
		t.Fatalf("commandWord=%q", got)
	}
	if got := sanitizeTelegramCommand(" Date-Format "); got != "date_format" {
		t.Fatalf("sanitize=%q", got)
	}
	if got := sanitizeTelegramCommand(strings.Repeat("a", 40)); len(got) != 32 {
		t.Fatalf("sanitize len=%d", len(got))
	}
}

func TestUserError(t *testing.T) {
	t.Parallel()
	if got := userError(Userf("Use on or %s.", "off")); got != "Use on or off." {
		t.Fatalf("got %q", got)
	}
	if got := userError(context.DeadlineExceeded); !strings.Contains(got, "Timed out") {
		t.Fatalf("got %q", got)
	}
	if got := userError(errors.New("db locked")); strings.Contains(got, "db locked") {
		t.Fatalf("internal error leaked: %q", got)
	}
}

func TestRouterDispatchesCommand(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, []int64{7}, time.Second)
	var gotArgs []string
	m.SetRegistry([]Command{{
		Name:    "echo",
		Aliases: []string{"e"},
		Handle: func(ctx context.Context, req *Request) error {
			gotArgs = req.Args
			return req.Reply(ctx, "ok "+strings.Join(req.Args, ","), nil)
		},
	}}, nil)
	ch := startRouter(t, m)

	ch <- msg(7, "/e@bot a \"b c\"")
	ad.wait(t)
	if got := ad.lastSent(); got != "ok a,b c" {
		t.Fatalf("reply=%q", got)
	}
	if len(gotArgs) != 2 {
		t.Fatalf("args=%q", gotArgs)
	}
}

func TestRouterAccessAndUnknown(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, []int64{7}, time.Second)
	m.SetRegistry([]Command{{Name: "secret", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "secret", nil)
	}}}, nil)
	ch := startRouter(t, m)

	ch <- msg(8, "/secret")
	ad.wait(t)
	if got := ad.lastSent(); got != "unauthorized" {
		t.Fatalf("reply=%q", got)
	}
	ch <- msg(8, "/nope")
	ad.wait(t)
	if got := ad.lastSent(); !strings.Contains(got, "Unknown command") {
		t.Fatalf("reply=%q", got)
	}
	// help is open to everyone
	ch <- msg(8, "/start")
	ad.wait(t)
	if got := ad.lastSent(); !strings.Contains(got, "/secret") {
		t.Fatalf("help=%q", got)
	}
	// plain text is ignored; the next reply is for /help
	ch <- msg(7, "hello")
	ch <- msg(7, "/secret")
	ad.wait(t)
	if got := ad.lastSent(); got != "secret" {
		t.Fatalf("reply=%q", got)
	}
}

func TestRouterHandlerErrorReply(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, nil, time.Second)
	m.SetRegistry([]Command{
		{Name: "bad", Handle: func(context.Context, *Request) error { return Userf("Usage: /bad x") }},
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("boom") }},
	}, nil)
	ch := startRouter(t, m)

	ch <- msg(1, "/bad")
	ad.wait(t)
	if got := ad.lastSent(); got != "Usage: /bad x" {
		t.Fatalf("reply=%q", got)
	}
	ch <- msg(1, "/boom")
	ad.wait(t)
	if got := ad.lastSent(); got != "Something went wrong." {
		t.Fatalf("reply=%q", got)
	}
}

func TestRouterCallback(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, nil, time.Second)
	var payload string
	m.SetRegistry(nil, []CallbackRoute{{Prefix: "theme", Handle: func(_ context.Context, req *Request) error {
		payload = req.Payload
		return nil
	}}})
	ch := startRouter(t, m)

	ch <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c1", FromID: 1, ChatID: 42, MessageID: 9, Data: "theme:dark"}}
	ad.wait(t)
	if payload != "dark" {
		t.Fatalf("payload=%q", payload)
	}
	ad.mu.Lock()
	answers := append([]string(nil), ad.answers...)
	ad.mu.Unlock()
	if len(answers) != 1 || answers[0] != "" {
		t.Fatalf("answers=%q", answers)
	}
}

func TestMenuCommandsSorted(t *testing.T) {
	t.Parallel()
	m := NewCommandManager(logx.Nop(), newFakeAdapter(), nil, time.Second)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Name: "time", Description: "set time", Handle: noop},
		{Name: "add", Handle: noop},
		{Name: "", Handle: noop},
	}, nil)
	menu := m.MenuCommands()
	var names []string
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if strings.Join(names, ",") != "add,help,time" {
		t.Fatalf("menu=%v", names)
	}
	if menu[0].Description != "add" {
		t.Fatalf("empty description should fall back to the name, got %q", menu[0].Description)
	}
}
