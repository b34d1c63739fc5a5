package reminder

import (
	"strconv"
	"strings"
	"time"
)

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour
)

// FormatDuration renders ms as e.g. "1 day 2 hours 5 seconds". Each part is
// truncated, zero parts are omitted, and zero or negative input gives "".
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	parts := []struct {
		n    int64
		unit string
	}{
		{ms / msDay, "day"},
		{(ms / msHour) % 24, "hour"},
		{(ms / msMinute) % 60, "minute"},
		{(ms / msSecond) % 60, "second"},
	}
	var b strings.Builder
	for _, p := range parts {
		if p.n <= 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(p.n, 10))
		b.WriteByte(' ')
		b.WriteString(p.unit)
		if p.n > 1 {
			b.WriteByte('s')
		}
	}
	return b.String()
}

// FormatDelay is FormatDuration for a time.Duration.
func FormatDelay(d time.Duration) string {
	return FormatDuration(d.Milliseconds())
}
