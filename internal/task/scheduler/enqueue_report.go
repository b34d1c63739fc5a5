package scheduler

import (
	"errors"
	"time"

	"fooddates/internal/task/engine"
	logx "fooddates/pkg/logx"
)

// enqueueWarnEvery limits enqueue warnings to one per schedule per window.
// Failures inside the window are counted and reported with the next warning.
const enqueueWarnEvery = 5 * time.Second

type enqueueFailures struct {
	lastWarn   time.Time
	suppressed int
}

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		// the previous run is still going
		s.log.Debug("trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	f := s.enqFailures[name]
	if f == nil {
		f = &enqueueFailures{}
		s.enqFailures[name] = f
	}
	if !f.lastWarn.IsZero() && now.Sub(f.lastWarn) < enqueueWarnEvery {
		f.suppressed++
		s.enqMu.Unlock()
		return
	}
	suppressed := f.suppressed
	f.lastWarn, f.suppressed = now, 0
	s.enqMu.Unlock()

	s.log.Warn("trigger not enqueued",
		logx.String("schedule", name),
		logx.Int("suppressed", suppressed),
		logx.Err(err),
	)
}
