package expiry

import (
	"fmt"
	"strings"
	"time"

	"fooddates/internal/prefs"
	"fooddates/internal/storage"
)

// Report is the result of classifying items against one day.
type Report struct {
	Today    time.Time // calendar date, midnight UTC
	WarnDays int
	Expired  []storage.Item
	DueToday []storage.Item
	Soon     []storage.Item
	// Fresh counts the items beyond the warning window.
	Fresh int
}

// Empty reports whether no item needs attention.
func (r Report) Empty() bool {
	return len(r.Expired) == 0 && len(r.DueToday) == 0 && len(r.Soon) == 0
}

// Classify splits items into expired (before today), expiring today and
// expiring within warnDays after today. Other items are only counted. now is
// reduced to its calendar date in its own location.
func Classify(items []storage.Item, now time.Time, warnDays int) Report {
	if warnDays <= 0 {
		warnDays = 1
	}
	today := storage.DateOf(now)
	limit := today.AddDate(0, 0, warnDays)
	r := Report{Today: today, WarnDays: warnDays}
	for _, it := range items {
		d := storage.DateOf(it.ExpiresOn)
		switch {
		case d.Before(today):
			r.Expired = append(r.Expired, it)
		case d.Equal(today):
			r.DueToday = append(r.DueToday, it)
		case !d.After(limit):
			r.Soon = append(r.Soon, it)
		default:
			r.Fresh++
		}
	}
	return r
}

// Message renders the notification text. Dates use the strftime pattern
// dateFormat.
func (r Report) Message(dateFormat string) string {
	var b strings.Builder
	section := func(title string, items []storage.Item) {
		if len(items) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title)
		b.WriteString("\n")
		for _, it := range items {
			fmt.Fprintf(&b, "• %s (%s)\n", it.Name, prefs.FormatDate(dateFormat, it.ExpiresOn))
		}
	}
	section("Expired:", r.Expired)
	section("Expiring today:", r.DueToday)
	if r.WarnDays == 1 {
		section("Expiring tomorrow:", r.Soon)
	} else {
		section(fmt.Sprintf("Expiring in the next %d days:", r.WarnDays), r.Soon)
	}
	return strings.TrimRight(b.String(), "\n")
}
