// Package eventbus fans control loop events out to in-process subscribers
// such as the metrics collector.
package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBuffer is the channel capacity of every subscriber created through
// New. A tick publishes one event per command plus a summary.
const DefaultBuffer = 64

var droppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "solarcharge_eventbus_dropped_total",
	Help: "Events dropped per subscriber because its buffer was full",
}, []string{"subscriber"})

func init() {
	prometheus.MustRegister(droppedEvents)
}

// Event is any value published on the bus, usually a type from core/events.
type Event any

// EventBus is a fan-out publish/subscribe bus. Publish never blocks.
type EventBus interface {
	Publish(Event)
	// Subscribe returns a channel receiving every later event. name labels
	// the drop counter of the subscriber.
	Subscribe(name string) <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

type subscriber struct {
	name    string
	ch      chan Event
	dropped prometheus.Counter
}

// Bus is the channel based EventBus.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	buffer int
	closed bool
}

func New() *Bus { return NewWithBuffer(DefaultBuffer) }

// NewWithBuffer creates a Bus whose subscriber channels hold size events.
func NewWithBuffer(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{buffer: size}
}

// Publish hands e to every subscriber with room in its buffer and counts a
// drop for the others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Inc()
		}
	}
}

func (b *Bus) Subscribe(name string) <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, subscriber{name: name, ch: ch, dropped: droppedEvents.WithLabelValues(name)})
	return ch
}

// Subscribers returns the names of the active subscribers.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.name
	}
	return names
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Close closes all subscriber channels. Publishing afterwards is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
