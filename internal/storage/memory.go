package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// snapshot is the full state of the memory and file backends.
type snapshot struct {
	Prefs map[string]string `json:"prefs"`
	Items map[string]Item   `json:"items"`
	Dedup map[string]int64  `json:"dedup"` // unix milli
	Last  *CheckRun         `json:"last_run,omitempty"`
}

func newSnapshot() snapshot {
	return snapshot{
		Prefs: map[string]string{},
		Items: map[string]Item{},
		Dedup: map[string]int64{},
	}
}

// memStore keeps everything in maps. fileStore embeds it and persists
// after each mutation through the onChange hook.
type memStore struct {
	mu     sync.Mutex
	st     snapshot
	closed bool

	// onChange runs with mu held after a successful mutation.
	onChange func() error
	// onRun runs with mu held after a check run was recorded.
	onRun func(CheckRun) error
}

// NewMemory returns a store that lives only as long as the process.
func NewMemory() Store {
	return &memStore{st: newSnapshot()}
}

func (s *memStore) changed() error {
	if s.onChange == nil {
		return nil
	}
	return s.onChange()
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) GetPref(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.st.Prefs[key]
	return v, ok, nil
}

func (s *memStore) PutPref(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if old, ok := s.st.Prefs[key]; ok && old == value {
		return nil
	}
	s.st.Prefs[key] = value
	return s.changed()
}

func (s *memStore) PutPrefs(_ context.Context, kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	dirty := false
	for k, v := range kv {
		if old, ok := s.st.Prefs[k]; !ok || old != v {
			dirty = true
			break
		}
	}
	if !dirty {
		return nil
	}
	for k, v := range kv {
		s.st.Prefs[k] = v
	}
	return s.changed()
}

func (s *memStore) PutItem(_ context.Context, it Item) error {
	if err := validateItem(it); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.st.Items[it.ID] = it
	return s.changed()
}

func (s *memStore) GetItem(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Item{}, ErrClosed
	}
	it, ok := s.st.Items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (s *memStore) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.st.Items[id]; !ok {
		return ErrNotFound
	}
	delete(s.st.Items, id)
	return s.changed()
}

func (s *memStore) ListItems(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Item, 0, len(s.st.Items))
	for _, it := range s.st.Items {
		out = append(out, it)
	}
	sortItems(out)
	return out, nil
}

func (s *memStore) AppendCheckRun(_ context.Context, r CheckRun) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.st.Last = &r
	if s.onRun != nil {
		if err := s.onRun(r); err != nil {
			return err
		}
	}
	return s.changed()
}

func (s *memStore) LastCheckRun(_ context.Context) (CheckRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CheckRun{}, false, ErrClosed
	}
	if s.st.Last == nil {
		return CheckRun{}, false, nil
	}
	return *s.st.Last, true, nil
}

func (s *memStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.st.Dedup[key] = until.UnixMilli()
	return s.changed()
}

func (s *memStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	ms, ok := s.st.Dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
