package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/task/engine"
	logx "fooddates/pkg/logx"

	"github.com/robfig/cron/v3"
)

// AddSchedule parses schedule and registers either a cron or interval task.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return "", fmt.Errorf("%w: unsupported schedule kind", ErrInvalidRequest)
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return "", fmt.Errorf("%w: name and job required", ErrInvalidRequest)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: cron %q: %v", ErrInvalidRequest, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := scheduleDef{name: name, kind: kindCron, spec: spec, timeout: timeout, job: job, opt: opt}
	return s.upsertLocked(d), nil
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return "", fmt.Errorf("%w: name and job required", ErrInvalidRequest)
	}
	if every <= 0 {
		return "", fmt.Errorf("%w: interval must be > 0", ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := scheduleDef{
		name:    name,
		kind:    kindInterval,
		spec:    "@every " + every.String(),
		every:   every,
		timeout: timeout,
		job:     job,
		opt:     TaskOptions{Overlap: OverlapSkipIfRunning},
	}
	return s.upsertLocked(d), nil
}

// Remove unschedules the schedule with the given name. It reports whether
// something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Has reports whether a schedule with the given name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.findLocked(name)
	return ok
}

// upsertLocked replaces any definition with the same name and registers
// the new one when the cron loop runs. Call with s.mu held.
func (s *Service) upsertLocked(d scheduleDef) string {
	s.removeScheduleLocked(d.name)
	s.seq++
	d.id = fmt.Sprintf("%s:%d", d.kind, s.seq)
	d.state = &engine.RunState{}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// registered by Start
		return d.id
	}
	def := &s.defs[len(s.defs)-1]
	s.registerLocked(def)
	if s.log.Enabled(logx.LevelDebug) {
		args := []logx.Field{logx.String("name", d.name), logx.String("id", d.id), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout)}
		if next := s.previewNextRunsLocked(def, 3); next != "" {
			args = append(args, logx.String("next", next))
		}
		s.log.Debug("schedule registered", args...)
	}
	return d.id
}

func (s *Service) findLocked(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i := range s.defs {
		if s.defs[i].name == name {
			return i, true
		}
	}
	return -1, false
}

// removeScheduleLocked removes all defs matching name and unregisters them
// from cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	// clear the tail so removed jobs can be collected
	for i := n; i < len(s.defs); i++ {
		s.defs[i] = scheduleDef{}
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron loop. Call with s.mu held and
// s.c non-nil.
func (s *Service) registerLocked(d *scheduleDef) {
	sched, err := s.scheduleFor(d)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		d.entryID = 0
		return
	}
	d.entryID = s.c.Schedule(sched, s.triggerJob(*d))
}

func (s *Service) scheduleFor(d *scheduleDef) (cron.Schedule, error) {
	switch d.kind {
	case kindPeriodic:
		return periodicSchedule{first: d.first, period: d.every}, nil
	case kindInterval:
		return cron.Every(d.every), nil
	default:
		return s.parser.Parse(d.spec)
	}
}

func (s *Service) triggerJob(d scheduleDef) cron.Job {
	return cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{
			Name:    d.name,
			Timeout: d.timeout,
			Run:     d.job,
			Opt:     d.opt,
			State:   d.state,
		})
		if err != nil {
			s.reportEnqueueError(d.name, err)
		}
	})
}

// previewNextRunsLocked returns the next n fire times of d, comma separated.
func (s *Service) previewNextRunsLocked(d *scheduleDef, n int) string {
	sched, err := s.scheduleFor(d)
	if err != nil || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	t := s.now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.In(loc).Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
