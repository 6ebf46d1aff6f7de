// Package monitor watches the construction episode of one (type, side) pair
// and runs the closure check exactly once, when the episode ends.
package monitor

import (
	"fmt"

	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"
)

// State is the position of a Monitor in its one-shot life.
type State int

const (
	Armed State = iota
	Fired
	Aborted
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Mode selects which lifecycle event ends the episode.
type Mode int

const (
	// Episode: the type is materializing or has an opening scope executing.
	// The episode ends when the last of its scopes closes, or when a
	// bodiless dynamic construction returns.
	Episode Mode = iota
	// Blocks: a late directive issued inside blocks of the current frame.
	// The episode ends when the outermost of those blocks returns.
	Blocks
	// Directive: a late directive with nothing left to wait for. The
	// episode ends when the directive returns.
	Directive
)

func (m Mode) String() string {
	switch m {
	case Episode:
		return "episode"
	case Blocks:
		return "blocks"
	case Directive:
		return "directive"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// SelectMode decides the terminal signal for a composition. classify is
// only called for late attachments made inside a block.
func SelectMode(c lifecycle.Composition, classify func() scope.Placement) Mode {
	if c.Fresh || c.Open > 0 {
		return Episode
	}
	if c.Depth == 0 {
		return Directive
	}
	if classify != nil && classify() == scope.TopLevel {
		return Directive
	}
	return Blocks
}

// Checker runs the closure check for a finished side of a type.
type Checker func(t *object.Type, side lifecycle.Side) error

// Monitor is a one-shot observer of a single (type, side) episode.
type Monitor struct {
	Type      *object.Type
	Side      lifecycle.Side
	Component *object.Type
	Mode      Mode
	Placement scope.Placement

	state  State
	count  int
	frame  int
	check  Checker
	detach func(*Monitor)
	onDone func(*Monitor, error)
}

// State returns the current state.
func (mon *Monitor) State() State { return mon.state }

func (mon *Monitor) String() string {
	return fmt.Sprintf("%s/%s %s %s", mon.Type.Name(), mon.Side, mon.Mode, mon.state)
}

// watches reports whether scope events of t belong to this episode. The
// singleton side also counts the scopes of the singleton itself.
func (mon *Monitor) watches(t *object.Type) bool {
	if t == mon.Type {
		return true
	}
	return mon.Side == lifecycle.Singleton && t != nil && t.IsSingleton() && t.Attached() == mon.Type
}

// Observe implements lifecycle.Listener. The first terminal event wins.
func (mon *Monitor) Observe(e lifecycle.Event) error {
	if mon.state != Armed {
		return nil
	}
	switch e.Kind {
	case lifecycle.Failure:
		mon.abort()
	case lifecycle.ScopeOpen:
		if mon.watches(e.Type) {
			mon.count++
		}
	case lifecycle.ScopeClose:
		if mon.watches(e.Type) && mon.count > 0 {
			mon.count--
			if mon.count == 0 {
				return mon.fire()
			}
		}
	case lifecycle.ConstructReturn:
		if mon.Mode == Episode && e.Type == mon.Type && mon.count == 0 {
			return mon.fire()
		}
	case lifecycle.BlockExit:
		if mon.Mode == Blocks && e.Frame == mon.frame && e.Depth == 0 {
			return mon.fire()
		}
	case lifecycle.DirectiveReturn:
		if mon.Mode == Directive && e.Type == mon.Type {
			return mon.fire()
		}
	}
	return nil
}

// fire detaches before checking, so the failure raised by the check is
// never observed by this monitor.
func (mon *Monitor) fire() error {
	mon.finish(Fired)
	var err error
	if mon.check != nil {
		err = mon.check(mon.Type, mon.Side)
	}
	mon.report(err)
	return err
}

func (mon *Monitor) abort() {
	mon.finish(Aborted)
	mon.report(nil)
}

func (mon *Monitor) finish(s State) {
	mon.state = s
	if mon.detach != nil {
		d := mon.detach
		mon.detach = nil
		d(mon)
	}
}

func (mon *Monitor) report(err error) {
	if mon.onDone != nil {
		mon.onDone(mon, err)
	}
}
