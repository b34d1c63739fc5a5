package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// Format is the console encoding: "text" (default) or "json".
	Format string
	File   FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const (
	defaultLogFile = "./fooddates.log"
	timeFormat     = "2006-01-02T15:04:05.000Z07:00"
)

// Service owns the sinks and lets Apply replace them while loggers handed
// out earlier keep working.
type Service struct {
	mu       sync.Mutex
	zl       atomic.Pointer[zerolog.Logger]
	file     *os.File
	filePath string
}

// New applies cfg and returns the service with a root logger bound to it.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.zl.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply rebuilds the sinks for cfg. The log file is reopened only when its
// path changes. With no sink configured, output goes to the console.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
			sinks = append(sinks, Stdout())
		} else {
			sinks = append(sinks, consoleWriter(Stdout()))
		}
	}

	path := ""
	if cfg.File.Enabled {
		path = strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
	}
	if path != s.filePath {
		s.closeFileLocked()
		if path != "" {
			f, err := openLogFile(path)
			if err != nil {
				fmt.Fprintf(Stderr(), "logx: open %s: %v\n", path, err)
			} else {
				s.file, s.filePath = f, path
			}
		}
	}
	if s.file != nil {
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(Stdout()))
	}

	zl := newZerolog(zerolog.MultiLevelWriter(sinks...), cfg.Level)
	s.zl.Store(&zl)
}

// Close closes the file sink. Console output keeps working.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFileLocked()
}

func (s *Service) closeFileLocked() error {
	f := s.file
	s.file, s.filePath = nil, ""
	if f == nil {
		return nil
	}
	return f.Close()
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func setGlobals() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

// parseLevel maps a config level to zerolog. Unknown or empty means info.
func parseLevel(s string) zerolog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ValidLevel reports whether s is a level name zerolog understands. The
// empty string is valid and means info.
func ValidLevel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "warning" {
		return true
	}
	_, err := zerolog.ParseLevel(s)
	return err == nil
}

// Stdout returns the stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the stderr sink.
func Stderr() io.Writer { return os.Stderr }
