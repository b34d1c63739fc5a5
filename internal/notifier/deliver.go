package notifier

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"fooddates/internal/eventbus"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

const (
	sendTimeout    = 10 * time.Second
	persistTimeout = 2 * time.Second
)

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) persistLoop(ctx context.Context, writes <-chan dedupWrite) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-writes:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, persistTimeout)
			err := s.dedup.store.PutDedup(wctx, w.key, w.until)
			cancel()
			if err != nil {
				s.log.Debug("dedup window not persisted", logx.String("key", w.key), logx.Err(err))
			}
		}
	}
}

// deliver sends one notification, retrying failed sends. A platform retry
// hint replaces the computed backoff for that attempt.
func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	text := j.n.Text
	if m := j.n.Priority.Marker(); m != "" {
		text = m + " " + text
	}
	if text == "" || s.adapter == nil {
		return
	}

	log := s.log.With(logx.String("channel", j.n.Channel), logx.Int64("chat_id", j.n.Target.ChatID))
	attempts := 1 + cfg.RetryMax
	var err error
	for attempt := 1; ; attempt++ {
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err = s.adapter.SendText(sctx, j.n.Target, text, j.n.Options)
		cancel()
		if err == nil {
			s.record(text, time.Now())
			s.publish(eventbus.TopicNotifySent, j.n, j.key, nil)
			return
		}
		if attempt >= attempts {
			break
		}
		wait := retryDelay(cfg, attempt)
		var hint kit.RetryHint
		if errors.As(err, &hint) && hint.RetryAfter() > 0 {
			wait = min(hint.RetryAfter(), cfg.RetryMaxDelay)
		}
		log.Debug("send failed, retrying", logx.Int("attempt", attempt), logx.Duration("in", wait), logx.Err(err))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	log.Warn("notification dropped", logx.Int("attempts", attempts), logx.Err(err))
	s.publish(eventbus.TopicNotifyFailed, j.n, j.key, err)
}

// retryDelay is the wait after a failed attempt: RetryBase doubled per
// attempt with 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + 0.6*rand.Float64()))
	return max(min(d, cfg.RetryMaxDelay), 0)
}
