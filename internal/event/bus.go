// Package event provides a typed publish/subscribe bus used to decouple the
// WebSocket connection manager from the components that consume its frames.
package event

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies a class of event. Frames forwarded from the server use
// their wire `type` string as the kind.
type Kind string

// Subscription identifies one registered listener so it can be removed later.
type Subscription struct {
	kind Kind
	id   string
}

type listener struct {
	id string
	fn func(payload any)
}

// Bus delivers events synchronously, on the goroutine that calls Emit, in
// subscription order. A panicking listener is recovered and logged so it
// cannot starve listeners registered after it.
type Bus struct {
	mu        sync.Mutex
	listeners map[Kind][]listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[Kind][]listener)}
}

// Subscribe registers fn for events of the given kind. Listeners for the same
// kind are invoked in the order they subscribed.
func (b *Bus) Subscribe(kind Kind, fn func(payload any)) Subscription {
	id := uuid.New().String()
	b.mu.Lock()
	b.listeners[kind] = append(b.listeners[kind], listener{id: id, fn: fn})
	b.mu.Unlock()
	return Subscription{kind: kind, id: id}
}

// Unsubscribe removes a previously registered listener. Removing a
// subscription twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[sub.kind]
	for i, l := range ls {
		if l.id == sub.id {
			b.listeners[sub.kind] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every listener of kind, synchronously. There is no
// queueing: a slow listener blocks the caller.
func (b *Bus) Emit(kind Kind, payload any) {
	b.mu.Lock()
	ls := b.listeners[kind]
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)
	b.mu.Unlock()

	for _, l := range snapshot {
		deliver(kind, l, payload)
	}
}

func deliver(kind Kind, l listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event: listener for %q panicked: %v", kind, r)
		}
	}()
	l.fn(payload)
}
