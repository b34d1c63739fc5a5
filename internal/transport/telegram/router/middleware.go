package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "fooddates/pkg/logx"
)

// slowRequest is the duration after which a successful request is logged at
// info instead of debug.
const slowRequest = 750 * time.Millisecond

// Middleware wraps a handler.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain applies m so that m[0] is the outermost wrapper.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// withTimeout bounds the handler context. d <= 0 leaves it unbounded.
func withTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// recoverPanics turns a handler panic into an error so the worker survives
// and the user gets the generic failure reply.
func recoverPanics(fallback logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				reqLogger(req, fallback).Error("handler panic",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
				err = fmt.Errorf("handler %s panicked: %v", req.Command, r)
			}()
			return next(ctx, req)
		}
	}
}

// logRequests logs every handled command or callback with its outcome.
// User mistakes (UserError) are logged at debug, the rest of the failures
// at warn.
func logRequests(fallback logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			log := reqLogger(req, fallback)
			fields := []logx.Field{logx.Duration("took", took)}
			if req.Payload != "" {
				fields = append(fields, logx.String("payload", req.Payload))
			}
			if len(req.Args) > 0 {
				fields = append(fields, logx.Int("args", len(req.Args)))
			}
			var ue *UserError
			switch {
			case errors.As(err, &ue):
				log.Debug("request rejected", append(fields, logx.String("reason", ue.Msg))...)
			case err != nil:
				log.Warn("request failed", append(fields, logx.Err(err))...)
			case took >= slowRequest:
				log.Info("slow request", fields...)
			default:
				log.Debug("request done", fields...)
			}
			return err
		}
	}
}

func reqLogger(req *Request, fallback logx.Logger) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}
