package prefs

import (
	"fmt"
	"strconv"
	"strings"
)

// NotificationTime is the local wall-clock time of the daily check.
type NotificationTime struct {
	Hour   int
	Minute int
}

func (t NotificationTime) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalid, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalid, t.Minute)
	}
	return nil
}

// String renders zero-padded HH:MM.
func (t NotificationTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseNotificationTime parses "H:MM" or "HH:MM" (also "HH.MM").
func ParseNotificationTime(s string) (NotificationTime, error) {
	raw := strings.TrimSpace(s)
	sep := strings.IndexAny(raw, ":.")
	if sep <= 0 || sep == len(raw)-1 {
		return NotificationTime{}, fmt.Errorf("%w: time %q (want HH:MM)", ErrInvalid, s)
	}
	h, err1 := strconv.Atoi(raw[:sep])
	m, err2 := strconv.Atoi(raw[sep+1:])
	if err1 != nil || err2 != nil || len(raw[sep+1:]) != 2 {
		return NotificationTime{}, fmt.Errorf("%w: time %q (want HH:MM)", ErrInvalid, s)
	}
	t := NotificationTime{Hour: h, Minute: m}
	if err := t.Validate(); err != nil {
		return NotificationTime{}, err
	}
	return t, nil
}
