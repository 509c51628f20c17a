package session

import (
	"sync"
)

// EventKind names an event channel. The values match the names the desktop
// client listens for.
type EventKind string

const (
	KindStarted EventKind = "recording-started"
	KindStatus  EventKind = "recording-status"
)

// Status is the categorical outcome carried by a SessionStatus event
type Status string

const (
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Event is anything published on the Bus
type Event interface {
	Kind() EventKind
}

// SessionStarted is published once the recorder is running
type SessionStarted struct {
	SessionID string `json:"session_id"`
}

func (SessionStarted) Kind() EventKind { return KindStarted }

// SessionStatus is published when a session ends or fails to start
type SessionStatus struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (SessionStatus) Kind() EventKind { return KindStatus }

// Handler receives events. Handlers run one at a time on the bus's
// dispatcher goroutine, in publish order.
type Handler func(Event)

// Bus delivers events to subscribers without blocking the publisher
type Bus struct {
	mu       sync.Mutex
	handlers map[EventKind]map[uint64]Handler
	nextID   uint64
	queue    []Event
	wake     chan struct{}
	idle     *sync.Cond
	busy     bool
	closed   bool
	done     chan struct{}
}

// NewBus creates a bus and starts its dispatcher
func NewBus() *Bus {
	b := &Bus{
		handlers: make(map[EventKind]map[uint64]Handler),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	b.idle = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// Subscribe registers handler for kind and returns a function that removes it
func (b *Bus) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.handlers[kind][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[kind], id)
			b.mu.Unlock()
		})
	}
}

// Publish queues ev for delivery
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 {
			b.busy = false
			b.idle.Broadcast()
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			<-b.wake
			b.mu.Lock()
		}

		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.busy = true
		handlers := make([]Handler, 0, len(b.handlers[ev.Kind()]))
		for _, h := range b.handlers[ev.Kind()] {
			handlers = append(handlers, h)
		}
		b.mu.Unlock()

		for _, h := range handlers {
			h(ev)
		}
	}
}

// Flush blocks until every event published so far has been delivered
func (b *Bus) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) > 0 || b.busy {
		b.idle.Wait()
	}
}

// Close delivers what is queued and stops the dispatcher. Later publishes
// are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
}
