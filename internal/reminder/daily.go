package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/task/scheduler"
	logx "fooddates/pkg/logx"
)

// Period is the interval between two checks.
const Period = 24 * time.Hour

// Runner accepts named periodic registrations. *scheduler.Service
// implements it.
type Runner interface {
	EnqueueUniquePeriodic(req scheduler.PeriodicRequest) (string, error)
}

// Plan describes one registration made by ScheduleDaily.
type Plan struct {
	ID           string
	Identity     string
	Due          time.Time
	InitialDelay time.Duration
	Period       time.Duration
}

// Human renders the initial delay, e.g. "2 hours 5 minutes".
func (p Plan) Human() string { return FormatDelay(p.InitialDelay) }

type Options struct {
	// Identity names the registration; defaults to "check_expirations".
	Identity string
	// Timeout bounds one run of the check; 0 uses the engine default.
	Timeout time.Duration
}

// Daily keeps exactly one daily registration of job with the runner.
type Daily struct {
	runner Runner
	job    func(ctx context.Context) error
	opt    Options
	log    logx.Logger
}

func NewDaily(runner Runner, job func(ctx context.Context) error, opt Options, log logx.Logger) *Daily {
	if log.IsZero() {
		log = logx.Nop()
	}
	opt.Identity = strings.TrimSpace(opt.Identity)
	if opt.Identity == "" {
		opt.Identity = "check_expirations"
	}
	return &Daily{runner: runner, job: job, opt: opt, log: log.With(logx.String("comp", "reminder"))}
}

// Identity is the name the check is registered under.
func (d *Daily) Identity() string { return d.opt.Identity }

// NextDue returns today's hour:minute:00 in now's location, or the same wall
// time tomorrow when that is not strictly after now.
func NextDue(hour, minute int, now time.Time) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}

// ScheduleDaily registers the check to first run at the next hour:minute
// after now and every 24 hours after that. A previous registration under the
// same identity is cancelled. hour and minute must already be valid.
func (d *Daily) ScheduleDaily(hour, minute int, now time.Time) (Plan, error) {
	due := NextDue(hour, minute, now)
	plan := Plan{
		Identity:     d.opt.Identity,
		Due:          due,
		InitialDelay: due.Sub(now),
		Period:       Period,
	}
	id, err := d.runner.EnqueueUniquePeriodic(scheduler.PeriodicRequest{
		Name:         plan.Identity,
		Period:       plan.Period,
		InitialDelay: plan.InitialDelay,
		Anchor:       now,
		Timeout:      d.opt.Timeout,
		Policy:       scheduler.ExistingCancelAndReenqueue,
		Job:          d.job,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("schedule %s: %w", plan.Identity, err)
	}
	plan.ID = id
	d.log.Debug("notification in "+plan.Human(),
		logx.String("task", plan.Identity),
		logx.Time("due", due),
		logx.Duration("delay", plan.InitialDelay),
	)
	return plan, nil
}
