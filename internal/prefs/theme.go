package prefs

import (
	"fmt"
	"strings"
)

// ThemeMode selects light, dark, or system-following appearance.
// It is persisted by name (LIGHT, DARK, SYSTEM), not by numeric value.
type ThemeMode int

const (
	ThemeLight ThemeMode = iota
	ThemeDark
	ThemeSystem
)

// ThemeModes lists every mode in display order.
func ThemeModes() []ThemeMode { return []ThemeMode{ThemeLight, ThemeDark, ThemeSystem} }

func (m ThemeMode) String() string {
	switch m {
	case ThemeLight:
		return "LIGHT"
	case ThemeDark:
		return "DARK"
	case ThemeSystem:
		return "SYSTEM"
	default:
		return fmt.Sprintf("ThemeMode(%d)", int(m))
	}
}

// Label is the human form used in chat replies.
func (m ThemeMode) Label() string {
	switch m {
	case ThemeLight:
		return "Light"
	case ThemeDark:
		return "Dark"
	case ThemeSystem:
		return "System"
	default:
		return m.String()
	}
}

func (m ThemeMode) Valid() bool { return m >= ThemeLight && m <= ThemeSystem }

// Dark reports whether the dark palette applies. SYSTEM follows systemDark.
func (m ThemeMode) Dark(systemDark bool) bool {
	switch m {
	case ThemeLight:
		return false
	case ThemeDark:
		return true
	default:
		return systemDark
	}
}

// ParseThemeMode accepts the mode name in any case or its ordinal.
func ParseThemeMode(s string) (ThemeMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIGHT", "0":
		return ThemeLight, nil
	case "DARK", "1":
		return ThemeDark, nil
	case "SYSTEM", "2", "AUTO":
		return ThemeSystem, nil
	}
	return 0, fmt.Errorf("%w: theme mode %q (want light, dark or system)", ErrInvalid, s)
}
