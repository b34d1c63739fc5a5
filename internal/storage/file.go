package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "fooddates/pkg/logx"
)

// fileStore persists the memory backend to disk.
//
// Files:
//   - <path>                 (JSON snapshot, replaced atomically)
//   - <prefix>.runs.jsonl    (append-only check-run log)
type fileStore struct {
	*memStore

	log      logx.Logger
	path     string
	runsFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	runsPath := filepath.Join(dir, base+".runs.jsonl")

	st, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	pruneExpiredDedup(st.Dedup)

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	fs := &fileStore{
		memStore: &memStore{st: st},
		log:      log,
		path:     path,
		runsFile: rf,
	}
	fs.onChange = fs.flushLocked
	fs.onRun = fs.appendRunLocked
	log.Debug("file store opened", logx.String("path", path), logx.Int("items", len(st.Items)))
	return fs, nil
}

func loadSnapshot(path string) (snapshot, error) {
	st := newSnapshot()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, err
	}
	if st.Prefs == nil {
		st.Prefs = map[string]string{}
	}
	if st.Items == nil {
		st.Items = map[string]Item{}
	}
	if st.Dedup == nil {
		st.Dedup = map[string]int64{}
	}
	return st, nil
}

// flushLocked writes the snapshot to a temp file and renames it over the
// previous one. Caller holds mu.
func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) appendRunLocked(r CheckRun) error {
	if s.runsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.flushLocked()
	if s.runsFile != nil {
		if cerr := s.runsFile.Close(); err == nil {
			err = cerr
		}
		s.runsFile = nil
	}
	return err
}
