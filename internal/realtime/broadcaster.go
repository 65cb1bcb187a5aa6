// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package realtime

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber channel depth. A consumer that
// falls this far behind loses hints; that is acceptable because hints only
// trigger refetches of canonical state.
const subscriberBuffer = 64

// Broadcaster distributes refresh hints to stream subscribers. The bridge
// publishes; whichever UI modules are mounted subscribe. Neither side knows
// about the other.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[Stream][]chan Event
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[Stream][]chan Event),
	}
}

// Subscribe creates a channel for receiving events on a stream.
func (b *Broadcaster) Subscribe(stream Stream) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subs[stream] = append(b.subs[stream], ch)
	return ch
}

// Unsubscribe removes a channel from a stream and closes it.
func (b *Broadcaster) Unsubscribe(stream Stream, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[stream]
	for i, sub := range subs {
		if sub == ch {
			b.subs[stream] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all subscribers of its stream.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Stream()] {
		select {
		case ch <- event:
		default:
			// The subscriber refetches on the next hint anyway.
			slog.Warn("refresh hint dropped: subscriber buffer full",
				"stream", string(event.Stream()),
				"topic", string(event.Topic),
				"event_id", event.ID.String(),
			)
		}
	}
}
