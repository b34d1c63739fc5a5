package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "fooddates/pkg/logx"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))
	s.Go("boom", func(ctx context.Context) error { return errors.New("boom") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Wait err=%v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(context.Background())
	s.Go("panicky", func(ctx context.Context) error { panic("bad") })
	if err := s.Wait(context.Background()); err == nil || !strings.Contains(err.Error(), "panic: bad") {
		t.Fatalf("Wait err=%v", err)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Active != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait err=%v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs=%d", runs.Load())
	}
	if snap := s.Snapshot(); snap[0].Restarts != 2 {
		t.Fatalf("restarts=%d", snap[0].Restarts)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("expected error after giving up")
	}
	if runs.Load() != 3 {
		t.Fatalf("runs=%d (initial + 2 restarts)", runs.Load())
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop err=%v", err)
	}
}
