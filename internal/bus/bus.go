// Package bus is a minimal in-process publish/subscribe channel.
//
// It is not a queue: Publish synchronously invokes every handler currently
// registered for the topic, in registration order, on the caller's goroutine.
// There is no buffering and no replay for late subscribers. The bus performs
// no de-duplication or filtering; that is each subscriber's job.
//
// Each handler is isolated. A returned error or a panic is logged and the
// remaining handlers still run. The publisher never observes handler failures.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Topic names an event stream.
type Topic string

// Handler receives one published payload.
type Handler func(ctx context.Context, payload any) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is safe for concurrent Subscribe, Publish and unsubscribe.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a function that removes it.
// The returned function is idempotent.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Copy so snapshots taken by in-progress Publish calls stay intact.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = next
			}
			return
		}
	}
}

// Publish delivers payload to every handler registered for topic at the time
// of the call and returns the number of handlers that completed without error.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) int {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	ok := 0
	for _, s := range subs {
		if err := invoke(ctx, s.handler, payload); err != nil {
			slog.Error("bus handler failed",
				"topic", string(topic),
				"subscription", s.id,
				"error", err,
			)
			continue
		}
		ok++
	}
	return ok
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func invoke(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
