package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// defaultBufSize is used when a subscriber asks for no buffer.
const defaultBufSize = 256

// EventBus fans build events out to buffered subscriber channels. Slow
// subscribers lose events instead of stalling the build; Dropped counts them.
// A nil *EventBus drops everything, so publishers need no nil checks.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event            // channels subscribed to all topics
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving events published on topic.
// bufSize <= 0 selects the default buffer.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.subscribe(topic, false, bufSize)
}

// SubscribeAll returns a channel receiving events of every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe("", true, bufSize)
}

func (b *EventBus) subscribe(topic string, all bool, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Subscribing to a closed bus yields a closed channel.
	if b.closed {
		close(ch)
		return ch
	}
	if all {
		b.allSubs = append(b.allSubs, ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Publish delivers event to the subscribers of topic and to every
// SubscribeAll channel without blocking.
func (b *EventBus) Publish(topic string, event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		b.send(ch, event)
	}
	for _, ch := range b.allSubs {
		b.send(ch, event)
	}
}

func (b *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Emit publishes event on the topic named by the prefix of its type,
// e.g. "task.failed" goes to TopicTask.
func (b *EventBus) Emit(event Event) {
	topic, _, _ := strings.Cut(event.EventType(), ".")
	b.Publish(topic, event)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *EventBus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
// Safe to call multiple times.
func (b *EventBus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
