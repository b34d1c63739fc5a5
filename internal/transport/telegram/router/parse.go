package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// maxCommandLen is the Bot API limit for a command name.
const maxCommandLen = 32

// newReqID returns a short random id that ties the log lines of one
// request together.
func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:10]
}

// tokenizeCommandLine splits on whitespace. Single or double quotes keep
// spaces inside one token and a backslash escapes the next rune:
//
//	/add "greek yogurt" 2026-04-10
func tokenizeCommandLine(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		started bool
		quote   rune
		escaped bool
	)
	emit := func() {
		if started {
			out = append(out, cur.String())
			cur.Reset()
			started = false
		}
	}
	for _, r := range s {
		if escaped {
			cur.WriteRune(r)
			escaped, started = false, true
			continue
		}
		switch {
		case r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote, started = r, true
		case unicode.IsSpace(r):
			emit()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	emit()
	return out
}

// commandWord turns "/Time@FoodBot" into "time".
func commandWord(tok string) string {
	w, _, _ := strings.Cut(strings.TrimPrefix(tok, "/"), "@")
	return strings.ToLower(w)
}

// sanitizeTelegramCommand maps a name onto [a-z0-9_]{1,32}. Dashes and
// spaces become single underscores, other runes are dropped.
func sanitizeTelegramCommand(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_', r == '-', unicode.IsSpace(r):
			pendingSep = true
		}
	}
	out := b.String()
	if len(out) > maxCommandLen {
		out = strings.TrimRight(out[:maxCommandLen], "_")
	}
	return out
}
