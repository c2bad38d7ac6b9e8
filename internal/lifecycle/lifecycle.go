// Package lifecycle carries app foreground/background transitions to the
// tracking engine.
package lifecycle

import (
	"fmt"
	"strings"
	"sync"
)

// Event is an app lifecycle transition.
type Event int

const (
	Foreground Event = iota + 1
	Background
	Inactive
)

func (e Event) String() string {
	switch e {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Inactive:
		return "inactive"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ParseEvent maps a state name to an Event.
func ParseEvent(s string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "foreground", "active":
		return Foreground, nil
	case "background":
		return Background, nil
	case "inactive":
		return Inactive, nil
	}
	return 0, fmt.Errorf("unknown lifecycle state %q", s)
}

// Source delivers events to subscribers. The returned function removes the
// subscription; calling it more than once is safe.
type Source interface {
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Bus is an in-process Source. Publish delivers synchronously, in
// subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every current subscriber. Subscribers may
// unsubscribe from inside their callback.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
