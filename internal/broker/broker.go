// Package broker provides an in-memory pub/sub mechanism scoped by room
// token. It carries named room events to SSE connections.
package broker

import "sync"

// Event is one room event as delivered to subscribers. Payload is whatever
// the publisher handed over, serialized at the transport edge.
type Event struct {
	Name    string
	Payload any
}

// Broker is a room-scoped pub/sub hub. Events are fanned out best-effort:
// a subscriber whose buffer is full misses the event rather than blocking
// the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// New creates a ready-to-use Broker.
func New() *Broker {
	return &Broker{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe returns a buffered channel that receives every event published
// for the room while the subscription is live.
func (b *Broker) Subscribe(roomToken string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[roomToken] == nil {
		b.subs[roomToken] = make(map[chan Event]struct{})
	}
	b.subs[roomToken][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a channel from the room's subscriber set.
// If the room has no remaining subscribers, the entry is cleaned up.
func (b *Broker) Unsubscribe(roomToken string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[roomToken]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.subs, roomToken)
		}
	}
}

// Publish sends the event to every subscriber for the room without blocking.
func (b *Broker) Publish(roomToken string, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[roomToken] {
		select {
		case ch <- Event{Name: event, Payload: payload}:
		default:
		}
	}
}
