package events

import (
	"log"
	"sync"
	"time"

	"docbroker/internal/model"
)

// Type names an editing session lifecycle transition.
type Type string

const (
	Created Type = "created"
	Get     Type = "get"
	Joined  Type = "joined"
	Left    Type = "left"
	Saved   Type = "saved"
	Error   Type = "error"
)

// Event carries a lifecycle transition and a copy of the session record
// it happened to.
type Event struct {
	Type   Type                `json:"type"`
	Record model.SessionRecord `json:"record"`
	At     int64               `json:"at"`
}

type Listener interface {
	OnEditorEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEditorEvent(evt Event) { f(evt) }

// Dispatcher fans lifecycle events out to subscribers. Each listener is
// invoked in isolation: a panicking subscriber is logged and does not
// block the others.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Unsubscribe removes a previously subscribed listener. The listener
// must be a comparable value (not a bare ListenerFunc).
func (d *Dispatcher) Unsubscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) Fire(t Type, rec model.SessionRecord) {
	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	evt := Event{Type: t, Record: rec, At: time.Now().UnixMilli()}
	for _, l := range listeners {
		fire(l, evt)
	}
}

func fire(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: %s listener panic: %v", evt.Type, r)
		}
	}()
	l.OnEditorEvent(evt)
}
