package events

import (
	"testing"

	"docbroker/internal/model"
)

func TestDispatcher_FireReachesAllListeners(t *testing.T) {
	d := NewDispatcher()
	var got []Type
	d.Subscribe(ListenerFunc(func(evt Event) { got = append(got, evt.Type) }))
	d.Subscribe(ListenerFunc(func(evt Event) { got = append(got, evt.Type) }))

	d.Fire(Joined, model.SessionRecord{UserID: "alice"})
	if len(got) != 2 || got[0] != Joined || got[1] != Joined {
		t.Fatalf("expected both listeners fired, got %v", got)
	}
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(ListenerFunc(func(Event) { panic("boom") }))
	fired := 0
	d.Subscribe(ListenerFunc(func(Event) { fired++ }))

	d.Fire(Error, model.SessionRecord{})
	if fired != 1 {
		t.Fatalf("expected second listener to fire despite panic, got %d", fired)
	}
}

type countListener struct{ fired int }

func (c *countListener) OnEditorEvent(Event) { c.fired++ }

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher()
	l := &countListener{}
	d.Subscribe(l)
	d.Fire(Saved, model.SessionRecord{})
	d.Unsubscribe(l)
	d.Fire(Saved, model.SessionRecord{})
	if l.fired != 1 {
		t.Fatalf("expected 1 fire after unsubscribe, got %d", l.fired)
	}
}
