package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fooddates/internal/eventbus"
	rtsup "fooddates/internal/runtime/supervisor"
	"fooddates/internal/storage"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const (
	historySize    = 100
	persistBacklog = 64
)

var _ DedupStore = storage.Store(nil)

type job struct {
	n   kit.Notification
	key string
}

// run is one Start..Stop cycle.
type run struct {
	queue   chan job
	persist chan dedupWrite // nil without persisted dedup
	sup     *rtsup.Supervisor
	// intake counts Notify calls that may still send on queue.
	intake   sync.WaitGroup
	stopping chan struct{} // closed when Stop begins
	stopped  chan struct{} // closed when the workers are gone
}

// Service delivers notifications through one adapter. It is safe for
// concurrent use.
type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	dedup   *dedupCache

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	cur     *run

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		dedup:   newDedupCache(store),
	}
	s.Apply(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps config. Workers, queue size and dedup persistence take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

// Start launches the workers. It is a no-op while running or disabled, and
// waits for a Stop in progress to finish.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if r := s.cur; r != nil {
		s.mu.Unlock()
		select {
		case <-r.stopping:
		default:
			return
		}
		select {
		case <-r.stopped:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.cur != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	cfg := s.cfg
	r := &run{
		queue:    make(chan job, cfg.QueueSize),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
		sup: rtsup.NewSupervisor(ctx,
			rtsup.WithLogger(s.log),
			rtsup.WithCancelOnError(false),
		),
	}
	if cfg.PersistDedup && s.dedup.store != nil {
		r.persist = make(chan dedupWrite, persistBacklog)
	}
	s.cur = r
	s.mu.Unlock()

	if r.persist != nil {
		r.sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, r.persist)
			return loopExit(c, r, "dedup persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := range cfg.Workers {
		r.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, r.queue)
			return loopExit(c, r, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// loopExit tells the supervisor whether a finished loop should restart.
func loopExit(c context.Context, r *run, what string) error {
	select {
	case <-r.stopping:
		return context.Canceled
	default:
	}
	if err := c.Err(); err != nil {
		return err
	}
	return fmt.Errorf("notifier %s exited", what)
}

// Stop refuses new notifications and delivers what is queued until ctx
// ends. Whatever is still queued then is dropped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	r := s.cur
	if r == nil {
		s.mu.Unlock()
		return
	}
	select {
	case <-r.stopping:
		s.mu.Unlock()
		select {
		case <-r.stopped:
		case <-ctx.Done():
		}
		return
	default:
	}
	close(r.stopping)
	s.mu.Unlock()

	go func() {
		r.intake.Wait()
		close(r.queue)
		if r.persist != nil {
			close(r.persist)
		}
		_ = r.sup.Wait(context.Background())
		r.sup.Cancel()

		s.mu.Lock()
		if s.cur == r {
			s.cur = nil
		}
		s.mu.Unlock()
		close(r.stopped)
	}()

	select {
	case <-r.stopped:
		s.log.Info("notifier stopped")
	case <-ctx.Done():
		r.sup.Cancel()
		s.log.Warn("notifier stop timed out, queued notifications dropped")
	}
}

// Notify queues n. A notification identical to one accepted inside the
// dedup window is dropped and nil is returned.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg, r := s.cfg, s.cur
	switch {
	case !cfg.Enabled:
		s.mu.Unlock()
		return ErrDisabled
	case r == nil || isClosed(r.stopping):
		s.mu.Unlock()
		return ErrStopped
	}
	r.intake.Add(1)
	s.mu.Unlock()
	defer r.intake.Done()

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && key != "" && !s.dedup.admit(ctx, key, time.Now(), cfg, r.persist) {
		s.log.Debug("notification deduped", logx.String("key", key))
		s.publish(eventbus.TopicNotifyDeduped, n, key, nil)
		return nil
	}

	select {
	case r.queue <- job{n: n, key: key}:
		return nil
	default:
		s.publish(eventbus.TopicNotifyDropped, n, key, ErrQueueFull)
		return ErrQueueFull
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// History returns the most recent delivered texts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) record(text string, at time.Time) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: at, Text: text})
	if over := len(s.history) - historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

func (s *Service) publish(topic string, n kit.Notification, key string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{
		Channel:  n.Channel,
		ChatID:   n.Target.ChatID,
		ThreadID: n.Target.ThreadID,
		Key:      key,
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: topic, Time: ev.At, Data: ev})
}
