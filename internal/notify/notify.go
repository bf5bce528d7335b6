// Package notify is the side channel the turn controller uses to announce
// state changes and message text to passive observers such as the console
// echo and the web event feed.
//
// Delivery is synchronous and direct: Publish snapshots the subscriber list
// under the lock, releases it, and then calls every matching handler in
// subscription order on the publishing goroutine. A handler that subscribes
// or unsubscribes during delivery only affects later publishes. Nothing is
// queued and nothing flows back to the publisher; slow handlers slow the
// publisher down, so handlers that do I/O should hand off to their own
// goroutine.
package notify

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Event names a notification.
type Event string

// The event vocabulary published by the turn controller.
const (
	// StatusChanged carries "status" and, optionally, "detail".
	StatusChanged Event = "status_changed"

	// UserMessage carries the transcribed utterance in "text".
	UserMessage Event = "user_message"

	// AssistantMessage carries the response in "text".
	AssistantMessage Event = "assistant_message"

	// ConversationReset has an empty payload.
	ConversationReset Event = "conversation_reset"
)

// Payload keys used by the event vocabulary.
const (
	KeyStatus = "status"
	KeyDetail = "detail"
	KeyText   = "text"
)

// Payload is the plain key/value body of an event.
type Payload map[string]string

// Handler receives one event. The payload is a private copy.
type Handler func(event Event, payload Payload)

// Publisher is the write side of a Channel.
type Publisher interface {
	Publish(event Event, payload Payload)
}

type subscription struct {
	id      uint64
	event   Event // empty matches every event
	handler Handler
}

// Channel is a thread-safe publish/subscribe registry. The zero value is
// ready to use.
type Channel struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
}

var _ Publisher = (*Channel)(nil)

// New returns an empty Channel.
func New() *Channel {
	return &Channel{}
}

// Subscribe registers h for event and returns a function that removes it.
// The returned function is idempotent.
func (c *Channel) Subscribe(event Event, h Handler) (unsubscribe func()) {
	if event == "" {
		panic("notify: Subscribe with empty event; use SubscribeAll")
	}
	return c.add(event, h)
}

// SubscribeAll registers h for every event.
func (c *Channel) SubscribeAll(h Handler) (unsubscribe func()) {
	return c.add("", h)
}

func (c *Channel) add(event Event, h Handler) func() {
	if h == nil {
		panic("notify: nil handler")
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, event: event, handler: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = slices.Delete(c.subs, i, i+1)
			return
		}
	}
}

// Publish delivers event to every matching handler registered before the
// call, in subscription order. A panicking handler is logged and skipped.
func (c *Channel) Publish(event Event, payload Payload) {
	c.mu.Lock()
	snapshot := slices.Clone(c.subs)
	c.mu.Unlock()

	for _, s := range snapshot {
		if s.event != "" && s.event != event {
			continue
		}
		deliver(s.handler, event, payload)
	}
}

func deliver(h Handler, event Event, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notify: handler panicked", "event", string(event), "panic", fmt.Sprint(r))
		}
	}()
	p := maps.Clone(payload)
	if p == nil {
		p = Payload{}
	}
	h(event, p)
}

// Len returns the number of registered handlers.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
