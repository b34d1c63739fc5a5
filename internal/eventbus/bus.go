package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published inside the app.
const (
	TopicSettingsChanged = "settings.changed"
	TopicCheckScheduled  = "check.scheduled"
	TopicScheduleAdded   = "schedule.added"
	TopicCheckFinished   = "check.finished"
	TopicTaskFinished    = "task.finished"
	TopicTaskFailed      = "task.failed"
	TopicTaskSkipped     = "task.skipped"
	TopicNotifySent      = "notify.sent"
	TopicNotifyFailed    = "notify.failed"
	TopicNotifyDeduped   = "notify.deduped"
	TopicNotifyDropped   = "notify.dropped"
)

// Event is an in-memory signal used to decouple components.
//
// Publish never blocks; subscribers get buffered channels and a slow
// subscriber loses events instead of stalling the publisher.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe (write lock) cannot
	// close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Filter returns events of the given types from ch until it closes. Like
// Publish it drops an event when the output buffer is full.
func Filter(ch <-chan Event, types ...string) <-chan Event {
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	out := make(chan Event, cap(ch))
	go func() {
		defer close(out)
		for e := range ch {
			if _, ok := want[e.Type]; !ok {
				continue
			}
			select {
			case out <- e:
			default:
			}
		}
	}()
	return out
}
