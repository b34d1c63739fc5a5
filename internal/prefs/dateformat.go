package prefs

import (
	"fmt"
	"strings"
	"time"

	strftime "github.com/ncruces/go-strftime"
)

var dateFormats = []string{
	"%d/%m/%Y",
	"%m/%d/%Y",
	"%Y-%m-%d",
	"%d.%m.%Y",
	"%d %b %Y",
	"%b %d, %Y",
	"%A %d %B %Y",
}

// DateFormats lists the patterns offered by the date format picker.
func DateFormats() []string {
	return append([]string(nil), dateFormats...)
}

// FormatDate renders t with a strftime pattern.
func FormatDate(pattern string, t time.Time) string {
	return strftime.Format(pattern, t)
}

// ValidateDateFormat rejects blank patterns and patterns that contain no
// conversion at all (they would render the same text for every date).
func ValidateDateFormat(pattern string) error {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return fmt.Errorf("%w: empty date format", ErrInvalid)
	}
	if len(p) > 64 {
		return fmt.Errorf("%w: date format too long", ErrInvalid)
	}
	a := time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC)
	b := time.Date(2012, 11, 24, 0, 0, 0, 0, time.UTC)
	if FormatDate(p, a) == FormatDate(p, b) {
		return fmt.Errorf("%w: date format %q has no date fields", ErrInvalid, pattern)
	}
	return nil
}
