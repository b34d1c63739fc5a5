package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped, previous run still active")
)

// NoRetry marks err as permanent. The engine records the failure and does
// not schedule another attempt.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// IsNoRetry reports whether err, or an error it wraps, came from NoRetry.
func IsNoRetry(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// RetryAfterError is implemented by errors that ask for a specific wait
// before the next attempt. transport.RateLimited errors satisfy it.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RetryAfter asks the engine to wait after before retrying err. The wait
// is still capped by RetryMaxDelay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayedError{err: err, after: max(after, 0)}
}

type delayedError struct {
	err   error
	after time.Duration
}

func (e *delayedError) Error() string {
	return fmt.Sprintf("retry in %s: %v", e.after, e.err)
}
func (e *delayedError) Unwrap() error             { return e.err }
func (e *delayedError) RetryAfter() time.Duration { return e.after }
