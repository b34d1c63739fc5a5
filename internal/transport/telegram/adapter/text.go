package adapter

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "fooddates/internal/transport"
)

const telegramTextLimit = 4000

// splitTelegramText cuts s into chunks of at most limit runes. It cuts
// after a newline when one lies in the last two thirds of the window, and
// in HTML mode it never cuts inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	isHTML := strings.EqualFold(parseMode, "HTML")

	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = cutPoint(rs, start, end, limit, isHTML)
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, isHTML bool) int {
	for i := end - 1; i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !isHTML {
		return end
	}
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}

// maxCallbackData is the Bot API callback_data limit in bytes.
const maxCallbackData = 64

// inlineMarkup builds an inline keyboard. Buttons keep their raw callback
// data; those over the Bot API limit are dropped.
func inlineMarkup(rows [][]kit.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, r := range rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			if b.Text == "" || len(b.Data) > maxCallbackData {
				continue
			}
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
		}
		if len(btns) > 0 {
			out = append(out, rm.Row(btns...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
