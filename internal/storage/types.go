package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// DateLayout is the on-disk form of Item.ExpiresOn.
const DateLayout = "2006-01-02"

// Config configures storage.
//
// Driver values:
//   - "" or "memory": in-process only, nothing survives a restart
//   - "file": JSON snapshot at Path
//   - "sqlite": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Item is one tracked food item. ExpiresOn is a calendar date held at
// midnight UTC; use DateOf to build one from a local timestamp.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ExpiresOn time.Time `json:"expires_on"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckRun records one execution of the daily expiration check.
type CheckRun struct {
	At       time.Time `json:"at"`
	Expired  int       `json:"expired"`
	Today    int       `json:"today"`
	Soon     int       `json:"soon"`
	Notified bool      `json:"notified"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

// Store is the persistence API used by the rest of the app.
type Store interface {
	GetPref(ctx context.Context, key string) (value string, ok bool, err error)
	PutPref(ctx context.Context, key, value string) error
	// PutPrefs writes every pair or none of them.
	PutPrefs(ctx context.Context, kv map[string]string) error

	PutItem(ctx context.Context, it Item) error
	GetItem(ctx context.Context, id string) (Item, error)
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context) ([]Item, error)

	AppendCheckRun(ctx context.Context, r CheckRun) error
	LastCheckRun(ctx context.Context) (CheckRun, bool, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// DateOf returns the calendar date of t (in t's location) as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ExpiresOn.Equal(b.ExpiresOn) {
			return a.ExpiresOn.Before(b.ExpiresOn)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func validateItem(it Item) error {
	if it.ID == "" {
		return errors.New("storage: item id is required")
	}
	if it.Name == "" {
		return errors.New("storage: item name is required")
	}
	if it.ExpiresOn.IsZero() {
		return errors.New("storage: item expiry date is required")
	}
	return nil
}
