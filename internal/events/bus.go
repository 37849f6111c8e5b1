// Package events provides an in-process broadcaster for delivery
// outcomes, feeding the WebSocket event stream.
package events

import (
	"sync"
	"time"
)

// subscriberBuffer bounds each subscriber's channel. Publish never
// blocks; a subscriber that falls this far behind starts losing events.
const subscriberBuffer = 64

// DeliveryEvent describes the outcome of one delivery attempt.
type DeliveryEvent struct {
	// PostID is the record id (or synthesized id for immediate posts).
	PostID string `json:"post_id"`

	// Platform is the target platform tag.
	Platform string `json:"platform"`

	// Outcome is "sent", "transient_failure" or "permanent_failure".
	Outcome string `json:"outcome"`

	// PlatformPostID is set when the attempt succeeded.
	PlatformPostID string `json:"platform_post_id,omitempty"`

	// Detail carries the failure description, if any.
	Detail string `json:"detail,omitempty"`

	// Time is when the outcome was recorded.
	Time time.Time `json:"time"`
}

// Bus fans delivery events out to subscribers. The zero value is not
// usable; create one with NewBus. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[chan DeliveryEvent]struct{}
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[chan DeliveryEvent]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its event channel
// along with a cancel function. Cancel must be called when the
// subscriber is done; it closes the channel.
func (b *Bus) Subscribe() (<-chan DeliveryEvent, func()) {
	ch := make(chan DeliveryEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
// Subscribers with a full buffer miss the event.
func (b *Bus) Publish(e DeliveryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
