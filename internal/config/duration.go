package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string such as "90s" or "1h30m".
// Empty means 0. key is the config path used in errors.
func ParseDurationField(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 30s, 5m)", key, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", key, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
