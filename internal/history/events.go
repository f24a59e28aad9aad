package history

import (
	"log/slog"
	"sync"

	"go.klb.dev/clipdeck/internal/entry"
)

// EventKind identifies a history notification.
type EventKind int

const (
	EntryAdded EventKind = iota + 1
	EntryRemoved
	PaneSwitched
	PastePerformed
)

func (k EventKind) String() string {
	switch k {
	case EntryAdded:
		return "entry-added"
	case EntryRemoved:
		return "entry-removed"
	case PaneSwitched:
		return "pane-switched"
	case PastePerformed:
		return "paste-performed"
	default:
		return "unknown"
	}
}

// Event is a fire-and-forget notification to the presentation layer.
// Empty is set on EntryRemoved when the list became empty, which is the
// signal to hide the interface.
type Event struct {
	Kind   EventKind
	Entry  *entry.Entry
	Empty  bool
	Pane   Pane
	Action string
}

// Bus fans events out to subscribers. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("history subscriber full, dropping event", "subscriber", id, "event", ev.Kind)
		}
	}
}
