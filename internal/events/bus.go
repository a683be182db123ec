// Package events is a channel-based RunEvent distribution system shared by
// every stage of a run. It is the single logical sink spec.md §2 refers to:
// every stage publishes to it and the streaming consumer subscribes to it.
// The run's own event log is appended by the orchestrator itself at each
// publish, not through a subscription.
package events

import (
	"sync"
	"time"

	"deepresearch/internal/types"
)

// subscriber pairs a delivery channel with its delivery policy.
type subscriber struct {
	ch       chan types.RunEvent
	blocking bool
}

// Bus distributes types.RunEvent values to any number of subscribers.
// Grounded on the teacher's internal/events/bus.go, unchanged in shape:
// buffered per-subscriber channels, safe Close. Unlike the teacher, a
// subscriber can opt into guaranteed delivery (see SubscribeBlocking),
// since spec.md §9's streaming path must never drop an event.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	buffer      int
	closed      bool
}

// NewBus creates a new event bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	return &Bus{buffer: bufferSize}
}

// Subscribe returns a channel that receives every event published after
// this call. A subscriber whose buffer is full misses the event rather
// than stalling the publisher, matching the teacher's drop-on-full
// policy; use SubscribeBlocking when delivery must be guaranteed.
func (b *Bus) Subscribe() <-chan types.RunEvent {
	return b.subscribe(false)
}

// SubscribeBlocking returns a channel that receives every event published
// after this call, with guaranteed delivery: Publish blocks on this
// subscriber instead of dropping, per spec.md §9 "Backpressure of the
// event stream" ("the worker may block at the next emit await — this is
// intentional"). Callers must keep draining the channel until it closes;
// a stalled blocking subscriber stalls every future Publish.
func (b *Bus) SubscribeBlocking() <-chan types.RunEvent {
	return b.subscribe(true)
}

func (b *Bus) subscribe(blocking bool) <-chan types.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	buffer := b.buffer
	if blocking {
		buffer = 0
	}
	ch := make(chan types.RunEvent, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, &subscriber{ch: ch, blocking: blocking})
	return ch
}

// Publish sends an event to all current subscribers. Non-blocking
// subscribers miss the event if their buffer is full; blocking
// subscribers (see SubscribeBlocking) always receive it, even if Publish
// must wait for them to read. Non-blocking subscribers are served first,
// so a slow blocking subscriber never delays their delivery.
func (b *Bus) Publish(event types.RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.blocking {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
	for _, s := range subs {
		if s.blocking {
			s.ch <- event
		}
	}
}

// Close shuts down all subscriber channels. Further Publish calls are
// no-ops and further Subscribe calls return an already-closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subscribers {
		close(s.ch)
	}
	b.subscribers = nil
}
