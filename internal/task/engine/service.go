package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fooddates/internal/eventbus"
	rtsup "fooddates/internal/runtime/supervisor"
	logx "fooddates/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service executes tasks on a fixed pool of workers fed by a bounded queue.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q      chan queuedTask
	sup    *rtsup.Supervisor
	stopCh chan struct{}

	inFlight atomic.Int32

	stateMu sync.Mutex
	states  map[string]*RunState

	hmu     sync.Mutex
	history []HistoryItem

	idSeq   atomic.Uint64
	dropped atomic.Uint64

	lastQueueFullWarnAt atomic.Int64
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
	opt        TaskOptions
	state      *RunState
	track      bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("comp", "taskengine")),
		bus:    bus,
		states: make(map[string]*RunState),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. Workers are restarted when the pool shape or
// the enabled flag changes.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil
	s.mu.Unlock()

	restart := prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize || prev.Enabled != cfg.Enabled
	if !restart {
		return
	}
	if running {
		s.Stop(ctx)
	}
	s.Start(ctx)
}

// Start launches the workers. It is a no-op when disabled or running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.stopCh != nil {
		return
	}

	cfg := s.cfg
	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)

	queue, stopCh := s.q, s.stopCh
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		s.sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue, idx)
			select {
			case <-stopCh:
				return nil
			default:
			}
			if c.Err() != nil {
				return nil
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop signals workers and waits for in-flight tasks until ctx ends.
// Queued but unstarted tasks are discarded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	sup := s.sup
	s.q, s.stopCh, s.sup = nil, nil, nil
	s.mu.Unlock()

	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("task engine stop", logx.Err(err))
		return
	}
	s.log.Info("task engine stopped")
}

// Enqueue adds a task without blocking; a full queue drops it.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

// Submit blocks until the task is accepted, ctx ends, or the engine stops.
func (s *Service) Submit(ctx context.Context, t Task) error {
	return s.enqueue(ctx, t, true)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("task Name is required")
	}
	now := time.Now()
	if strings.TrimSpace(t.ID) == "" {
		t.ID = fmt.Sprintf("tsk-%x-%x", now.UnixNano(), s.idSeq.Add(1))
	}

	s.mu.Lock()
	cfg, q, stopCh := s.cfg, s.q, s.stopCh
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if q == nil {
		return ErrStopped
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	opt := t.Opt.withDefaults(cfg)

	st := t.State
	if st == nil {
		st = s.stateFor(t.Name)
	}
	track := opt.Overlap == OverlapSkipIfRunning
	if track && !st.tryAcquire() {
		s.publish(eventbus.TopicTaskSkipped, now, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
		s.log.Debug("task skipped due to overlap", logx.String("task", t.Name), logx.String("id", t.ID))
		return ErrOverlapSkip
	}

	qt := queuedTask{task: t, enqueuedAt: now, timeout: timeout, opt: opt, state: st, track: track}
	if !block {
		select {
		case q <- qt:
			return nil
		default:
			if track {
				st.release()
			}
			s.onQueueFullDropped(now, t, q)
			return ErrQueueFull
		}
	}

	select {
	case q <- qt:
		return nil
	case <-ctx.Done():
		if track {
			st.release()
		}
		return ctx.Err()
	case <-stopCh:
		if track {
			st.release()
		}
		return ErrStopped
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q := s.cfg, s.q
	running := s.stopCh != nil
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:  cfg.Enabled,
		Running:  running,
		Workers:  cfg.Workers,
		InFlight: int(s.inFlight.Load()),
		Dropped:  s.dropped.Load(),
		RetryMax: cfg.RetryMax,
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) stateFor(name string) *RunState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := s.states[name]
	if st == nil {
		st = &RunState{}
		s.states[name] = st
	}
	return st
}

func (s *Service) record(item HistoryItem, historySize int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(topic string, at time.Time, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: topic, Time: at, Data: ev})
	}
}

func (s *Service) onQueueFullDropped(now time.Time, t Task, q chan queuedTask) {
	n := s.dropped.Add(1)
	s.publish(eventbus.TopicTaskSkipped, now, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})

	prev := s.lastQueueFullWarnAt.Load()
	if prev != 0 && now.UnixNano()-prev < int64(warnThrottleEvery) {
		return
	}
	if s.lastQueueFullWarnAt.CompareAndSwap(prev, now.UnixNano()) {
		s.log.Warn("task dropped: queue full",
			logx.String("task", t.Name),
			logx.Int("queue_cap", cap(q)),
			logx.Int64("dropped", int64(n)),
		)
	}
}
