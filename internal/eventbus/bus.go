package eventbus

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Event types published by the runtime.
const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskSkipped  = "task.skipped"
	TaskDropped  = "task.dropped"

	FetchSucceeded = "fetch.succeeded"
	FetchFailed    = "fetch.failed"

	UserSignup     = "user.signup"
	UserRegistered = "user.registered"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a full buffer drops the event for that subscriber.
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

	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch between snapshot and send.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
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
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
}

// Dropped reports how many deliveries were dropped on full subscriber
// buffers. It returns 0 for buses that do not track drops.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
