package call

import (
	"sync"
	"time"
)

// EventType names a caller-context event.
type EventType string

const (
	EventStateChanged       EventType = "stateChanged"
	EventTranscriptAppended EventType = "transcriptAppended"
	EventCallFailed         EventType = "callFailed"
	EventPartialText        EventType = "partialText"
)

// Event is what the caller context renders.
type Event struct {
	Type   EventType `json:"type"`
	CallID string    `json:"call_id,omitempty"`
	From   State     `json:"from,omitempty"`
	To     State     `json:"to,omitempty"`
	Turn   *Turn     `json:"turn,omitempty"`
	Text   string    `json:"text,omitempty"`
	Error  string    `json:"error,omitempty"`
	Code   string    `json:"code,omitempty"`
	At     time.Time `json:"at"`
}

const subscriberBuffer = 256

// Broadcaster fans caller events out to subscribers. Publishing never
// blocks; a subscriber that falls behind misses events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Channel full, skip
		}
	}
}

// Subscribe returns a channel receiving every event published from now on.
func (b *Broadcaster) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscription.
func (b *Broadcaster) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}
