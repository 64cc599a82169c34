// Package events provides the typed publish/subscribe bus a session uses to
// announce connection lifecycle, inbound payloads and dialog state changes.
package events

import "sync"

// Kind identifies an event category. Listeners register against Kind
// constants, never string literals.
type Kind int

const (
	// Connected fires once per connection instance before any Message.
	Connected Kind = iota
	// Message carries one raw inbound frame in Data.
	Message
	// Error carries a transport failure in Err.
	Error
	// Closed fires when a connection instance that reached Connected ends.
	Closed
	// DialogsChanged fires after any dialog list mutation.
	DialogsChanged
	// SelectionChanged fires when the selection set or mode changes.
	SelectionChanged
	// LoadingChanged fires when pagination or processing flags change.
	LoadingChanged
	// Notice carries a transient user-visible message in Value (a Notice).
	Notice
	// OpenDialog asks the presentation layer to open a conversation.
	OpenDialog
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Message:
		return "message"
	case Error:
		return "error"
	case Closed:
		return "closed"
	case DialogsChanged:
		return "dialogs_changed"
	case SelectionChanged:
		return "selection_changed"
	case LoadingChanged:
		return "loading_changed"
	case Notice:
		return "notice"
	case OpenDialog:
		return "open_dialog"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners of its Kind.
type Event struct {
	Kind Kind
	// Conn is the connection instance id for lifecycle and Message events.
	Conn uint64
	Data []byte
	Err  error
	// Value carries presentation payloads (Notice, DialogRef, counts).
	Value any
}

// Listener receives events.
type Listener func(Event)

// Subscription is the disposer handle returned by Subscribe.
type Subscription struct {
	bus   *Bus
	kind  Kind
	entry *entry
}

// Unsubscribe removes the listener. Safe to call more than once and on the
// zero Subscription.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.kind, s.entry)
}

type entry struct {
	fn Listener
}

// Bus delivers events synchronously, in registration order, within the
// Emit call.
type Bus struct {
	mu        sync.Mutex
	listeners map[Kind][]*entry
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Kind][]*entry)}
}

// Subscribe registers fn for kind.
func (b *Bus) Subscribe(kind Kind, fn Listener) Subscription {
	e := &entry{fn: fn}
	b.mu.Lock()
	b.listeners[kind] = append(b.listeners[kind], e)
	b.mu.Unlock()
	return Subscription{bus: b, kind: kind, entry: e}
}

// Unsubscribe removes a listener; unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	if s.bus != b {
		return
	}
	b.remove(s.kind, s.entry)
}

func (b *Bus) remove(kind Kind, e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[kind]
	for i, cur := range list {
		if cur == e {
			next := make([]*entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			b.listeners[kind] = append(next, list[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every listener of ev.Kind. Listeners may subscribe or
// unsubscribe during delivery; changes apply from the next Emit.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	list := b.listeners[ev.Kind]
	b.mu.Unlock()
	for _, e := range list {
		e.fn(ev)
	}
}

// Count returns the number of listeners registered for kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[kind])
}

// Clear drops every listener.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.listeners = make(map[Kind][]*entry)
	b.mu.Unlock()
}
