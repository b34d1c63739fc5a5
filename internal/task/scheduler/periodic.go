package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/eventbus"
	logx "fooddates/pkg/logx"
)

// ExistingPolicy decides what EnqueueUniquePeriodic does when a schedule
// with the same name is already registered.
type ExistingPolicy int

const (
	// ExistingCancelAndReenqueue removes the registered schedule and adds
	// the new one.
	ExistingCancelAndReenqueue ExistingPolicy = iota
	// ExistingKeep leaves the registered schedule untouched.
	ExistingKeep
)

func (p ExistingPolicy) String() string {
	if p == ExistingKeep {
		return "KEEP"
	}
	return "CANCEL_AND_REENQUEUE"
}

// PeriodicRequest describes a named job that first runs after InitialDelay
// and then every Period.
type PeriodicRequest struct {
	Name         string
	Period       time.Duration
	InitialDelay time.Duration
	// Anchor is the instant InitialDelay is measured from. Zero means now.
	Anchor  time.Time
	Timeout time.Duration
	Policy  ExistingPolicy
	Job     func(ctx context.Context) error
}

func (r PeriodicRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name required", ErrInvalidRequest)
	case r.Period <= 0:
		return fmt.Errorf("%w: period must be > 0", ErrInvalidRequest)
	case r.InitialDelay < 0:
		return fmt.Errorf("%w: initial delay must be >= 0", ErrInvalidRequest)
	case r.Job == nil:
		return fmt.Errorf("%w: job required", ErrInvalidRequest)
	}
	return nil
}

// EnqueueUniquePeriodic registers a periodic schedule keyed by name and
// returns its id. At most one schedule per name exists afterwards.
func (s *Service) EnqueueUniquePeriodic(req PeriodicRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(req.Name)
	anchor := req.Anchor
	if anchor.IsZero() {
		anchor = s.now()
	}
	first := anchor.Add(req.InitialDelay)

	s.mu.Lock()
	if req.Policy == ExistingKeep {
		if i, ok := s.findLocked(name); ok {
			id := s.defs[i].id
			s.mu.Unlock()
			s.log.Debug("periodic schedule kept", logx.String("name", name), logx.String("id", id))
			return id, nil
		}
	}
	id := s.upsertLocked(scheduleDef{
		name:    name,
		kind:    kindPeriodic,
		spec:    fmt.Sprintf("every %s from %s", req.Period, first.Format(time.RFC3339)),
		every:   req.Period,
		first:   first,
		timeout: req.Timeout,
		job:     req.Job,
		opt:     TaskOptions{Overlap: OverlapSkipIfRunning},
	})
	info := ScheduleInfo{ID: id, Name: name, Kind: kindPeriodic.String(), Period: req.Period, Timeout: req.Timeout, Next: first}
	s.mu.Unlock()

	s.log.Info("periodic schedule registered",
		logx.String("name", name),
		logx.String("id", id),
		logx.String("policy", req.Policy.String()),
		logx.Time("first", first),
		logx.Duration("period", req.Period),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicScheduleAdded, Data: info})
	}
	return id, nil
}

// periodicSchedule fires at first and then at first + k*period, so the
// phase survives cron restarts.
type periodicSchedule struct {
	first  time.Time
	period time.Duration
}

func (p periodicSchedule) Next(t time.Time) time.Time {
	if t.Before(p.first) {
		return p.first.In(t.Location())
	}
	k := t.Sub(p.first)/p.period + 1
	return p.first.Add(k * p.period).In(t.Location())
}
