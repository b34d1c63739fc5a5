package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"fooddates/internal/eventbus"
	logx "fooddates/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask, idx int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ (int64(idx) << 32)))
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stopCh, t, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	if qt.track {
		defer qt.state.release()
	}
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	log := s.log.With(logx.String("task", qt.task.Name), logx.String("id", qt.task.ID))
	log.Debug("task started", logx.Duration("queue_delay", queueDelay))

	maxAttempts := 1 + qt.opt.RetryMax
	var (
		err      error
		attempts int
	)
attemptLoop:
	for attempts = 1; attempts <= maxAttempts; attempts++ {
		err = s.runOnce(ctx, qt, log)
		if err == nil {
			break
		}
		var nr *permanentError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempts == maxAttempts {
			break
		}

		delay := backoffDelayWithHint(qt.opt, attempts, err, rng)
		log.Debug("task retry scheduled", logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}
	attempts = min(attempts, maxAttempts)

	dur := time.Since(start)
	ev := TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
		log.Warn("task failed", logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish(eventbus.TopicTaskFailed, time.Now(), ev)
	} else {
		log.Debug("task completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish(eventbus.TopicTaskFinished, time.Now(), ev)
	}
	s.record(HistoryItem{
		ID:         ev.ID,
		Name:       ev.Name,
		Started:    start,
		QueueDelay: queueDelay,
		Duration:   dur,
		Attempts:   attempts,
		Error:      ev.Error,
	}, cfg.HistorySize)
}

// runOnce runs a single attempt, converting a panic into an error.
func (s *Service) runOnce(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return qt.task.Run(runCtx)
}

func backoffDelayWithHint(opt TaskOptions, retry int, err error, rng *rand.Rand) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return jitter(min(ra.RetryAfter(), opt.RetryMaxDelay), opt, rng)
	}
	return backoffDelay(opt, retry, rng)
}

// backoffDelay doubles RetryBase per retry, capped at RetryMaxDelay.
func backoffDelay(opt TaskOptions, retry int, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry && d < opt.RetryMaxDelay; i++ {
		d *= 2
	}
	return jitter(min(d, opt.RetryMaxDelay), opt, rng)
}

func jitter(d time.Duration, opt TaskOptions, rng *rand.Rand) time.Duration {
	if d <= 0 || opt.RetryJitter <= 0 || rng == nil {
		return d
	}
	r := (rng.Float64()*2 - 1) * opt.RetryJitter
	d = time.Duration(float64(d) * (1 + r))
	return min(max(d, 0), opt.RetryMaxDelay)
}
