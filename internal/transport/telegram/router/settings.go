package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"fooddates/internal/expiry"
	"fooddates/internal/prefs"
	"fooddates/internal/reminder"
	"fooddates/internal/settings"
	"fooddates/internal/storage"
	kit "fooddates/internal/transport"
)

type SettingsPort interface {
	State(ctx context.Context) (settings.State, error)
	SetNotificationTime(ctx context.Context, t prefs.NotificationTime) (reminder.Plan, error)
	SetDateFormat(ctx context.Context, pattern string) error
	SetThemeMode(ctx context.Context, m prefs.ThemeMode) error
	SetDynamicColors(ctx context.Context, on bool) error
	ToggleDynamicColors(ctx context.Context) (bool, error)
}

type ItemsPort interface {
	Add(ctx context.Context, name string, expiresOn time.Time) (storage.Item, error)
	List(ctx context.Context) ([]storage.Item, error)
	Remove(ctx context.Context, idOrPrefix string) (storage.Item, error)
}

type CheckPort interface {
	Check(ctx context.Context) (expiry.Report, error)
}

// Handlers implements the settings and item commands.
type Handlers struct {
	Settings SettingsPort
	Items    ItemsPort
	Checker  CheckPort
	// Announce reports whether reschedules echo the delay to the user.
	Announce func() bool
	// Location defines "today" for /add and /check. nil means time.Local.
	Location func() *time.Location
}

const htmlOpts = "HTML"

// Registry returns the commands and callback routes served by h.
func (h *Handlers) Registry() ([]Command, []CallbackRoute) {
	cmds := []Command{
		{Name: "settings", Aliases: []string{"s"}, Description: "show settings", Usage: "/settings", Handle: h.cmdSettings},
		{Name: "time", Description: "set daily notification time", Usage: "/time HH:MM", Handle: h.cmdTime},
		{Name: "dateformat", Description: "list or set date format", Usage: "/dateformat [n|pattern]", Handle: h.cmdDateFormat},
		{Name: "theme", Description: "set theme mode", Usage: "/theme light|dark|system", Handle: h.cmdTheme},
		{Name: "colors", Description: "dynamic colors on or off", Usage: "/colors [on|off]", Handle: h.cmdColors},
		{Name: "add", Description: "track a food item", Usage: "/add <name> <YYYY-MM-DD>", Handle: h.cmdAdd},
		{Name: "list", Aliases: []string{"ls"}, Description: "list tracked items", Usage: "/list", Handle: h.cmdList},
		{Name: "remove", Aliases: []string{"rm"}, Description: "stop tracking an item", Usage: "/remove <id>", Handle: h.cmdRemove},
		{Name: "check", Description: "run the expiration check now", Usage: "/check", Timeout: time.Minute, Handle: h.cmdCheck},
	}
	cbs := []CallbackRoute{
		{Prefix: "theme", Handle: h.cbTheme},
		{Prefix: "colors", Handle: h.cbColors},
		{Prefix: "fmt", Handle: h.cbDateFormat},
	}
	return cmds, cbs
}

func (h *Handlers) location() *time.Location {
	if h.Location != nil {
		if loc := h.Location(); loc != nil {
			return loc
		}
	}
	return time.Local
}

func (h *Handlers) cmdSettings(ctx context.Context, req *Request) error {
	text, opt, err := h.card(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, text, opt)
}

// card renders the settings screen with its inline keyboard.
func (h *Handlers) card(ctx context.Context) (string, *kit.SendOptions, error) {
	st, err := h.Settings.State(ctx)
	if err != nil {
		return "", nil, err
	}
	return renderSettings(st), &kit.SendOptions{ParseMode: htmlOpts, Keyboard: settingsKeyboard(st)}, nil
}

func renderSettings(st settings.State) string {
	var b strings.Builder
	b.WriteString("⚙️ <b>Settings</b>\n\n")
	fmt.Fprintf(&b, "Date format: <code>%s</code> (%s)\n", html.EscapeString(st.DateFormat), html.EscapeString(st.DatePreview))
	fmt.Fprintf(&b, "Notification time: <b>%s</b>\n", st.NotificationTime)
	fmt.Fprintf(&b, "Theme: %s\n", st.Theme.Label())
	fmt.Fprintf(&b, "Dynamic colors: %s\n", onOff(st.DynamicColors))
	if st.NextCheckIn != "" {
		fmt.Fprintf(&b, "\nNext check in %s", st.NextCheckIn)
	}
	return strings.TrimRight(b.String(), "\n")
}

func settingsKeyboard(st settings.State) [][]kit.Button {
	var themes []kit.Button
	for _, m := range prefs.ThemeModes() {
		label := m.Label()
		if m == st.Theme {
			label = "• " + label
		}
		themes = append(themes, kit.Button{Text: label, Data: "theme:" + strings.ToLower(m.String())})
	}
	rows := [][]kit.Button{
		themes,
		{{Text: "Dynamic colors: " + onOff(st.DynamicColors), Data: "colors:toggle"}},
	}
	now := time.Now()
	var row []kit.Button
	for i, p := range prefs.DateFormats() {
		label := prefs.FormatDate(p, now)
		if p == st.DateFormat {
			label = "• " + label
		}
		row = append(row, kit.Button{Text: label, Data: "fmt:" + strconv.Itoa(i)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (h *Handlers) cmdTime(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return Userf("Usage: /time HH:MM")
	}
	t, err := prefs.ParseNotificationTime(req.Args[0])
	if err != nil {
		return &UserError{Msg: "Time must look like 08:30.", Err: err}
	}
	plan, err := h.Settings.SetNotificationTime(ctx, t)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Notification time set to %s.", t)
	if h.Announce != nil && h.Announce() {
		text += "\nNotification in " + plan.Human() + "."
	}
	return req.Reply(ctx, text, nil)
}

func (h *Handlers) cmdDateFormat(ctx context.Context, req *Request) error {
	formats := prefs.DateFormats()
	if len(req.Args) == 0 {
		st, err := h.Settings.State(ctx)
		if err != nil {
			return err
		}
		now := time.Now().In(h.location())
		var b strings.Builder
		b.WriteString("<b>Date formats</b>\n")
		for i, p := range formats {
			mark := ""
			if p == st.DateFormat {
				mark = " ✓"
			}
			fmt.Fprintf(&b, "\n%d. <code>%s</code> %s%s", i+1, html.EscapeString(p), html.EscapeString(prefs.FormatDate(p, now)), mark)
		}
		b.WriteString("\n\nPick one with /dateformat &lt;n&gt; or pass your own strftime pattern.")
		return req.Reply(ctx, b.String(), &kit.SendOptions{ParseMode: htmlOpts})
	}

	pattern := strings.Join(req.Args, " ")
	if n, err := strconv.Atoi(pattern); err == nil {
		if n < 1 || n > len(formats) {
			return Userf("Pick a number between 1 and %d.", len(formats))
		}
		pattern = formats[n-1]
	}
	if err := h.Settings.SetDateFormat(ctx, pattern); err != nil {
		return asUserError(err)
	}
	return req.Reply(ctx, fmt.Sprintf("Date format set: %s", prefs.FormatDate(pattern, time.Now().In(h.location()))), nil)
}

func (h *Handlers) cmdTheme(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return Userf("Usage: /theme light|dark|system")
	}
	m, err := prefs.ParseThemeMode(req.Args[0])
	if err != nil {
		return asUserError(err)
	}
	if err := h.Settings.SetThemeMode(ctx, m); err != nil {
		return err
	}
	return req.Reply(ctx, "Theme set to "+m.Label()+".", nil)
}

func (h *Handlers) cmdColors(ctx context.Context, req *Request) error {
	var (
		on  bool
		err error
	)
	switch {
	case len(req.Args) == 0:
		on, err = h.Settings.ToggleDynamicColors(ctx)
	default:
		on, err = parseOnOff(req.Args[0])
		if err != nil {
			return err
		}
		err = h.Settings.SetDynamicColors(ctx, on)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, "Dynamic colors "+onOff(on)+".", nil)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, Userf("Use on or off.")
}

func (h *Handlers) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		return Userf("Usage: /add <name> <YYYY-MM-DD>")
	}
	last := req.Args[len(req.Args)-1]
	date, err := parseItemDate(last, time.Now().In(h.location()))
	if err != nil {
		return err
	}
	it, err := h.Items.Add(ctx, strings.Join(req.Args[:len(req.Args)-1], " "), date)
	if err != nil {
		return asUserError(err)
	}
	st, err := h.Settings.State(ctx)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Added %s, expires %s (id %s).", it.Name, prefs.FormatDate(st.DateFormat, it.ExpiresOn), expiry.ShortID(it.ID)), nil)
}

// parseItemDate accepts YYYY-MM-DD, "today", "tomorrow" and "+N" (days).
func parseItemDate(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "today":
		return storage.DateOf(now), nil
	case s == "tomorrow":
		return storage.DateOf(now).AddDate(0, 0, 1), nil
	case strings.HasPrefix(s, "+"):
		n, err := strconv.Atoi(strings.TrimSuffix(s[1:], "d"))
		if err != nil || n < 0 || n > 3650 {
			return time.Time{}, Userf("Use +N for N days from today.")
		}
		return storage.DateOf(now).AddDate(0, 0, n), nil
	}
	d, err := storage.ParseDate(s)
	if err != nil {
		return time.Time{}, Userf("Date must look like 2026-04-10.")
	}
	return d, nil
}

func (h *Handlers) cmdList(ctx context.Context, req *Request) error {
	items, err := h.Items.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return req.Reply(ctx, "No items tracked. Add one with /add.", nil)
	}
	st, err := h.Settings.State(ctx)
	if err != nil {
		return err
	}
	today := storage.DateOf(time.Now().In(h.location()))
	var b strings.Builder
	b.WriteString("<b>Tracked items</b>\n")
	for _, it := range items {
		mark := ""
		switch {
		case it.ExpiresOn.Before(today):
			mark = " ❌"
		case it.ExpiresOn.Equal(today):
			mark = " ⚠️"
		}
		fmt.Fprintf(&b, "\n<code>%s</code> %s - %s%s", expiry.ShortID(it.ID), html.EscapeString(it.Name), html.EscapeString(prefs.FormatDate(st.DateFormat, it.ExpiresOn)), mark)
	}
	return req.Reply(ctx, b.String(), &kit.SendOptions{ParseMode: htmlOpts})
}

func (h *Handlers) cmdRemove(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return Userf("Usage: /remove <id>")
	}
	it, err := h.Items.Remove(ctx, req.Args[0])
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Userf("No item with id %s.", req.Args[0])
	case err != nil:
		return asUserError(err)
	}
	return req.Reply(ctx, "Removed "+it.Name+".", nil)
}

func (h *Handlers) cmdCheck(ctx context.Context, req *Request) error {
	rep, err := h.Checker.Check(ctx)
	if err != nil {
		return err
	}
	if rep.Empty() {
		return req.Reply(ctx, "Nothing expires soon. 👍", nil)
	}
	return req.Reply(ctx, fmt.Sprintf("Check done: %d expired, %d today, %d soon. Notification sent.", len(rep.Expired), len(rep.DueToday), len(rep.Soon)), nil)
}

func (h *Handlers) cbTheme(ctx context.Context, req *Request) error {
	m, err := prefs.ParseThemeMode(req.Payload)
	if err != nil {
		return asUserError(err)
	}
	if err := h.Settings.SetThemeMode(ctx, m); err != nil {
		return err
	}
	return h.refreshCard(ctx, req)
}

func (h *Handlers) cbColors(ctx context.Context, req *Request) error {
	if _, err := h.Settings.ToggleDynamicColors(ctx); err != nil {
		return err
	}
	return h.refreshCard(ctx, req)
}

func (h *Handlers) cbDateFormat(ctx context.Context, req *Request) error {
	formats := prefs.DateFormats()
	i, err := strconv.Atoi(req.Payload)
	if err != nil || i < 0 || i >= len(formats) {
		return Userf("Unknown date format.")
	}
	if err := h.Settings.SetDateFormat(ctx, formats[i]); err != nil {
		return err
	}
	return h.refreshCard(ctx, req)
}

// refreshCard re-renders the settings message the button belongs to.
func (h *Handlers) refreshCard(ctx context.Context, req *Request) error {
	text, opt, err := h.card(ctx)
	if err != nil {
		return err
	}
	ref, ok := req.MessageRef()
	if !ok {
		return req.Reply(ctx, text, opt)
	}
	return req.Adapter.EditText(ctx, ref, text, opt)
}

// asUserError exposes validation errors to the user.
func asUserError(err error) error {
	if errors.Is(err, prefs.ErrInvalid) || errors.Is(err, expiry.ErrInvalidItem) || errors.Is(err, expiry.ErrAmbiguousID) {
		return &UserError{Msg: err.Error(), Err: err}
	}
	return err
}
