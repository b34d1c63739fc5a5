package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	kit "fooddates/internal/transport"
)

// DedupStore persists suppression windows. storage.Store implements it.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)
}

const dedupLookupTimeout = 250 * time.Millisecond

type dedupWrite struct {
	key   string
	until time.Time
}

// dedupCache remembers recently accepted keys until their window ends.
// With a store, windows are also looked up there and written back through
// the persist channel.
type dedupCache struct {
	mu    sync.Mutex
	until map[string]time.Time
	store DedupStore
}

func newDedupCache(store DedupStore) *dedupCache {
	return &dedupCache{until: map[string]time.Time{}, store: store}
}

// admit reports whether key may be sent now and, if so, starts its window.
func (c *dedupCache) admit(ctx context.Context, key string, now time.Time, cfg Config, persist chan<- dedupWrite) bool {
	if c.suppressed(key, now) {
		return false
	}
	if cfg.PersistDedup && c.store != nil {
		lctx, cancel := context.WithTimeout(ctx, dedupLookupTimeout)
		until, ok, err := c.store.GetDedup(lctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			c.remember(key, until, now, cfg.DedupMaxEntries)
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	c.remember(key, until, now, cfg.DedupMaxEntries)
	if persist != nil {
		select {
		case persist <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

func (c *dedupCache) suppressed(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[key]
	return ok && now.Before(until)
}

// remember stores key and prunes expired entries. Above limit the entries
// closest to expiry go first.
func (c *dedupCache) remember(key string, until, now time.Time, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[key] = until
	for k, u := range c.until {
		if !now.Before(u) {
			delete(c.until, k)
		}
	}
	for len(c.until) > limit {
		oldest, first := "", time.Time{}
		for k, u := range c.until {
			if oldest == "" || u.Before(first) {
				oldest, first = k, u
			}
		}
		delete(c.until, oldest)
	}
}

// dedupKey identifies a notification by channel, target, priority and text.
// An empty channel disables dedup for that notification.
func dedupKey(n kit.Notification) string {
	if n.Channel == "" {
		return ""
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s\x00%d\x00%d\x00%d\x00%s", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority, n.Text)
	return fmt.Sprintf("%016x", h.Sum64())
}
