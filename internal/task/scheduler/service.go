package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/task/engine"
	logx "fooddates/pkg/logx"

	"github.com/robfig/cron/v3"
)

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		now:    time.Now,
		engine: eng,
		// 5 or 6 fields (leading seconds), plus descriptors like @daily
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		enqFailures: map[string]*enqueueFailures{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location is the timezone schedules fire in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		s.loc = s.resolveLocationLocked()
	}
	return s.loc
}

// Apply updates the config. A timezone change while running rebuilds the
// cron loop. Enabling or disabling is done with Start and Stop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if !tzChanged {
		return
	}
	s.loc = nil
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
		s.startCronLocked("timezone changed")
	}
}

// Start registers every definition and starts firing. Jobs run on the
// engine, not on the cron goroutine.
func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled, definitions kept", logx.Int("schedules", len(s.defs)))
		return
	}
	s.startCronLocked("start")
}

func (s *Service) startCronLocked(reason string) {
	s.loc = s.resolveLocationLocked()
	cl := cronLogger{s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	for i := range s.defs {
		s.registerLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("scheduler running", logx.String("reason", reason), logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops firing and waits for the cron loop until ctx is done.
// Definitions stay and are registered again on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	start := time.Now()
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) resolveLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("unknown timezone, using local time", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's own messages into logx. Its info output
// is per-tick chatter, so it goes to trace.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	if l.log.Enabled(logx.LevelTrace) {
		l.log.Trace("cron: "+msg, kvFields(kv)...)
	}
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
