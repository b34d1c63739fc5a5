package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	logx "fooddates/pkg/logx"
)

// ErrInvalid wraps every validation failure in this package.
var ErrInvalid = errors.New("invalid preference")

// Keys used in the backing key-value store.
const (
	KeyDateFormat         = "date_format"
	KeyNotificationHour   = "notification_hour"
	KeyNotificationMinute = "notification_minute"
	KeyThemeMode          = "theme_mode"
	KeyDynamicColors      = "dynamic_colors"
)

// Preferences is a full snapshot of the user's settings.
type Preferences struct {
	DateFormat       string
	NotificationTime NotificationTime
	ThemeMode        ThemeMode
	DynamicColors    bool
}

// Defaults returns the values used for settings never written.
func Defaults() Preferences {
	return Preferences{
		DateFormat:       "%d/%m/%Y",
		NotificationTime: NotificationTime{Hour: 11, Minute: 0},
		ThemeMode:        ThemeSystem,
		DynamicColors:    false,
	}
}

func (p Preferences) Validate() error {
	if err := ValidateDateFormat(p.DateFormat); err != nil {
		return err
	}
	if err := p.NotificationTime.Validate(); err != nil {
		return err
	}
	if !p.ThemeMode.Valid() {
		return fmt.Errorf("%w: theme mode %d", ErrInvalid, int(p.ThemeMode))
	}
	return nil
}

// KV is the slice of storage.Store the preference store needs.
type KV interface {
	GetPref(ctx context.Context, key string) (string, bool, error)
	PutPref(ctx context.Context, key, value string) error
	PutPrefs(ctx context.Context, kv map[string]string) error
}

// Store reads and writes preferences through a KV backend.
// Concurrent use is safe as long as the backend is.
type Store struct {
	kv  KV
	log logx.Logger

	mu       sync.RWMutex
	defaults Preferences
}

func New(kv KV, defaults Preferences, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{kv: kv, defaults: defaults, log: log.With(logx.String("comp", "prefs"))}
}

func (s *Store) Defaults() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// SetDefaults replaces the fallback values (config reload).
func (s *Store) SetDefaults(p Preferences) {
	s.mu.Lock()
	s.defaults = p
	s.mu.Unlock()
}

// Load returns the stored preferences with defaults filled in. A stored
// value that no longer parses is logged and replaced by its default.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	p := s.Defaults()

	if v, ok, err := s.kv.GetPref(ctx, KeyDateFormat); err != nil {
		return p, err
	} else if ok {
		if verr := ValidateDateFormat(v); verr != nil {
			s.log.Warn("stored date format ignored", logx.String("value", v), logx.Err(verr))
		} else {
			p.DateFormat = v
		}
	}

	hour, err := s.getInt(ctx, KeyNotificationHour, p.NotificationTime.Hour)
	if err != nil {
		return p, err
	}
	minute, err := s.getInt(ctx, KeyNotificationMinute, p.NotificationTime.Minute)
	if err != nil {
		return p, err
	}
	nt := NotificationTime{Hour: hour, Minute: minute}
	if verr := nt.Validate(); verr != nil {
		s.log.Warn("stored notification time ignored", logx.String("value", nt.String()), logx.Err(verr))
	} else {
		p.NotificationTime = nt
	}

	if v, ok, err := s.kv.GetPref(ctx, KeyThemeMode); err != nil {
		return p, err
	} else if ok {
		if m, perr := ParseThemeMode(v); perr != nil {
			s.log.Warn("stored theme mode ignored", logx.String("value", v))
		} else {
			p.ThemeMode = m
		}
	}

	if v, ok, err := s.kv.GetPref(ctx, KeyDynamicColors); err != nil {
		return p, err
	} else if ok {
		if b, perr := strconv.ParseBool(v); perr != nil {
			s.log.Warn("stored dynamic colors flag ignored", logx.String("value", v))
		} else {
			p.DynamicColors = b
		}
	}
	return p, nil
}

func (s *Store) getInt(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := s.kv.GetPref(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, perr := strconv.Atoi(strings.TrimSpace(v))
	if perr != nil {
		s.log.Warn("stored integer ignored", logx.String("key", key), logx.String("value", v))
		return def, nil
	}
	return n, nil
}

func (s *Store) SetDateFormat(ctx context.Context, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if err := ValidateDateFormat(pattern); err != nil {
		return err
	}
	return s.put(ctx, KeyDateFormat, pattern)
}

// SetNotificationTime validates t and writes its two keys in one batch.
func (s *Store) SetNotificationTime(ctx context.Context, t NotificationTime) error {
	if err := t.Validate(); err != nil {
		return err
	}
	err := s.kv.PutPrefs(ctx, map[string]string{
		KeyNotificationHour:   strconv.Itoa(t.Hour),
		KeyNotificationMinute: strconv.Itoa(t.Minute),
	})
	if err != nil {
		return fmt.Errorf("save notification time: %w", err)
	}
	return nil
}

func (s *Store) SetThemeMode(ctx context.Context, m ThemeMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: theme mode %d", ErrInvalid, int(m))
	}
	return s.put(ctx, KeyThemeMode, m.String())
}

func (s *Store) SetDynamicColors(ctx context.Context, on bool) error {
	return s.put(ctx, KeyDynamicColors, strconv.FormatBool(on))
}

func (s *Store) put(ctx context.Context, key, value string) error {
	if err := s.kv.PutPref(ctx, key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.log.Debug("preference saved", logx.String("key", key), logx.String("value", value))
	return nil
}
