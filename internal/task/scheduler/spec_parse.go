package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SpecKind is either a cron expression or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is the result of ParseSchedule. Source is "cron", "duration"
// or "hhmm".
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string
}

// ParseSchedule accepts a cron expression ("*/5 * * * *", "@daily"), a Go
// duration ("55m") or an HH:MM interval ("01:30" is 90 minutes). The prefixes
// "cron:", "interval:" and "every:" force the kind.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("%w: empty schedule", ErrInvalidRequest)
	}

	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		switch strings.ToLower(prefix) {
		case "cron":
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return ParsedSpec{}, fmt.Errorf("%w: empty cron expression", ErrInvalidRequest)
			}
			return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
		case "interval", "every":
			return parseInterval(rest)
		}
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	ps, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("%w: %q is not a cron expression, HH:MM or duration", ErrInvalidRequest, raw)
	}
	return ps, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	var (
		d   time.Duration
		src string
	)
	if h, m, ok := strings.Cut(v, ":"); ok {
		hh, err1 := strconv.Atoi(h)
		mm, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || hh < 0 || hh > 999 || len(m) != 2 || mm < 0 || mm > 59 {
			return ParsedSpec{}, fmt.Errorf("%w: invalid HH:MM interval %q", ErrInvalidRequest, v)
		}
		d, src = time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm"
	} else {
		pd, err := time.ParseDuration(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("%w: invalid interval %q", ErrInvalidRequest, v)
		}
		d, src = pd, "duration"
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("%w: interval must be positive", ErrInvalidRequest)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}
