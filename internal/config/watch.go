package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	logx "fooddates/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDebounce = 250 * time.Millisecond
	watchRetryMin  = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

var errWatcherClosed = errors.New("config watcher closed")

// Watch reloads the config when the file changes and returns when ctx is
// done. The parent directory is watched so editors that replace the file
// by rename are seen. A failed watcher is recreated with jittered backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	retry := watchRetryMin
	for {
		err := m.watchOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher restarting", logx.Err(err), logx.Duration("in", retry))

		wait := retry + rand.N(retry/2+1)
		retry = min(retry*2, watchRetryMax)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *ConfigManager) watchOnce(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, name := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if ev.Op&relevant != 0 && strings.EqualFold(filepath.Base(ev.Name), name) {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were lost, the file may have changed
				m.log.Warn("config watcher overflow", logx.Err(err))
				debounce.Reset(reloadDebounce)
				continue
			}
			m.log.Warn("config watcher error", logx.Err(err))
		}
	}
}
