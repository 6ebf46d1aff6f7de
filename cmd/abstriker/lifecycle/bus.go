package lifecycle

// Listener observes construction events. Returning an error turns the event
// into a failure of the construction step that published it.
type Listener interface {
	Observe(Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event) error

func (f ListenerFunc) Observe(e Event) error { return f(e) }

type subscription struct {
	l      Listener
	active bool
}

// Bus delivers events synchronously, in subscription order, on the
// publishing goroutine. It is not safe for concurrent use.
type Bus struct {
	subs []*subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe adds l and returns a function removing it. Removing twice is a
// no-op.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	s := &subscription{l: l, active: true}
	b.subs = append(b.subs, s)
	return func() {
		if !s.active {
			return
		}
		s.active = false
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of active listeners.
func (b *Bus) Len() int { return len(b.subs) }

// Publish delivers e to the listeners subscribed when the call started.
// Listeners removed during delivery are skipped. Delivery stops at the first
// listener error, which is returned.
func (b *Bus) Publish(e Event) error {
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	for _, s := range snapshot {
		if !s.active {
			continue
		}
		if err := s.l.Observe(e); err != nil {
			return err
		}
	}
	return nil
}
