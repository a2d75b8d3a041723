package reading

import "sync"

// EventType names a page event the collector listens to
type EventType string

const (
	EventFocus            EventType = "focus"
	EventBlur             EventType = "blur"
	EventVisibilityChange EventType = "visibilitychange"
	EventScroll           EventType = "scroll"
	EventBeforeUnload     EventType = "beforeunload"
	EventPageHide         EventType = "pagehide"
)

// ScrollSample is one raw scroll measurement in pixels
type ScrollSample struct {
	Top      float64
	Height   float64
	Viewport float64
}

// Event is a page event delivered to listeners
type Event struct {
	Type   EventType
	Hidden bool // visibilitychange only
	Scroll ScrollSample
}

// Listener handles a single event
type Listener func(Event)

// EventTarget is anything listeners can be attached to. The returned func
// detaches the listener and is safe to call more than once.
type EventTarget interface {
	AddListener(t EventType, fn Listener) (remove func())
}

// Dispatcher is an in-memory EventTarget. One Dispatcher stands in for one
// document view; the transport layer feeds client events into it.
type Dispatcher struct {
	mu        sync.Mutex
	nextID    int
	listeners map[EventType]map[int]Listener
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[EventType]map[int]Listener),
	}
}

// AddListener registers fn for events of type t
func (d *Dispatcher) AddListener(t EventType, fn Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	if d.listeners[t] == nil {
		d.listeners[t] = make(map[int]Listener)
	}
	d.listeners[t][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners[t], id)
			if len(d.listeners[t]) == 0 {
				delete(d.listeners, t)
			}
		})
	}
}

// Dispatch delivers ev to every listener registered for its type and
// returns how many listeners ran. Listeners run outside the dispatcher lock.
func (d *Dispatcher) Dispatch(ev Event) int {
	d.mu.Lock()
	fns := make([]Listener, 0, len(d.listeners[ev.Type]))
	for _, fn := range d.listeners[ev.Type] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}

// ListenerCount returns the number of registered listeners across all types
func (d *Dispatcher) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, byID := range d.listeners {
		n += len(byID)
	}
	return n
}
