package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by this service.
const (
	TypePacingTick       = "pacing.tick"
	TypePacingDispatched = "pacing.dispatched"
	TypeTaskStarted      = "task.started"
	TypeTaskFinished     = "task.finished"
	TypeTaskFailed       = "task.failed"
	TypeTaskDropped      = "task.dropped"
)

// Event is a small in-process signal.
//
// Publish never blocks. Subscribers get buffered channels and slow
// subscribers lose events. Data should be JSON-serializable so the NATS
// bridge can forward it.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
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
			// Holding the write lock means no Publish is mid-send on ch.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
