// Package router turns chat updates into command and callback handler calls.
//
// Commands are flat ("/time 08:30"). Callback data has the form
// "<prefix>:<payload>". Handlers run on a bounded worker pool behind the
// timeout, panic recovery and request log middleware.
package router

import (
	"context"
	"html"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "fooddates/internal/runtime/supervisor"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

const (
	defaultWorkers = 2
	jobQueueCap    = 64
)

type CommandManager struct {
	mu        sync.RWMutex
	commands  map[string]*Command // name and aliases
	ordered   []Command
	callbacks map[string]CallbackRoute
	owners    []int64
	timeout   time.Duration

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

// NewCommandManager builds a router. With no owners every user may run
// owner-only commands.
func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64, timeout time.Duration) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		commands:  map[string]*Command{},
		callbacks: map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		timeout:   timeout,
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		jobs:      make(chan func(), jobQueueCap),
	}
}

// Supervisor returns the worker pool supervisor (nil when not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetOwners updates the owner list; safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) allowed(access Access, userID int64) bool {
	if access == AccessEveryone {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.owners) == 0 {
		return true
	}
	for _, o := range m.owners {
		if o == userID {
			return true
		}
	}
	return false
}

// SetRegistry replaces all commands and callbacks. /help is added
// automatically.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Usage:       "/help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &cc
				}
			}
		}
		ordered = append(ordered, cc)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	routes := map[string]CallbackRoute{}
	for _, r := range cbs {
		p := strings.TrimSpace(r.Prefix)
		if p == "" || r.Handle == nil {
			continue
		}
		routes[p] = r
	}

	m.mu.Lock()
	m.commands = byName
	m.ordered = ordered
	m.callbacks = routes
	m.mu.Unlock()
}

// MenuCommands is the command list for the platform menu.
func (m *CommandManager) MenuCommands() []kit.BotCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(m.ordered))
	for _, c := range m.ordered {
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = c.Name
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	return out
}

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	cmds := append([]Command(nil), m.ordered...)
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("📚 <b>Commands</b>\n")
	for _, c := range cmds {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n<code>" + html.EscapeString(usage) + "</code>")
		if c.Description != "" {
			b.WriteString(" - " + html.EscapeString(c.Description))
		}
	}
	return b.String()
}

// DispatchLoop routes updates until ctx ends or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.runMu.Lock()
	m.sup, m.running = sup, true
	jobs := m.jobs
	m.runMu.Unlock()

	for i := 0; i < defaultWorkers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", defaultWorkers))

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.jobs = make(chan func(), jobQueueCap)
		m.runMu.Unlock()
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

// enqueue hands fn to the worker pool without blocking.
func (m *CommandManager) enqueue(fn func()) bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return false
	}
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	word := commandWord(parts[0])

	m.mu.RLock()
	cmd, ok := m.commands[word]
	m.mu.RUnlock()
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if !m.allowed(cmd.Access, msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args = parts[1:]
	final := m.chain(cmd.Handle, cmd.Timeout)
	if !m.enqueue(func() {
		if err := final(ctx, req); err != nil {
			_ = req.Reply(ctx, userError(err), nil)
		}
	}) {
		_, _ = m.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	prefix, payload, _ := strings.Cut(strings.TrimSpace(cb.Data), ":")

	m.mu.RLock()
	route, ok := m.callbacks[prefix]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !m.allowed(route.Access, cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+prefix)
	req.Payload = payload
	final := m.chain(route.Handle, route.Timeout)
	if !m.enqueue(func() {
		answer := ""
		if err := final(ctx, req); err != nil {
			answer = userError(err)
		}
		// stops the client's loading indicator
		_ = m.adapter.AnswerCallback(ctx, cb.ID, answer)
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (m *CommandManager) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	if timeout <= 0 {
		timeout = m.timeout
	}
	return Chain(h,
		recoverPanics(m.log),
		logRequests(m.log),
		withTimeout(timeout),
	)
}
