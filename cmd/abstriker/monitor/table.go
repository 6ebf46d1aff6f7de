package monitor

import (
	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"
)

type key struct {
	t    *object.Type
	side lifecycle.Side
}

// Table owns the live monitors of one session and subscribes them to its
// lifecycle bus. At most one monitor is live per (type, side).
// It is not safe for concurrent use.
type Table struct {
	bus    *lifecycle.Bus
	check  Checker
	onDone func(*Monitor, error)
	live   map[key]*Monitor
	unsub  map[*Monitor]func()
}

// NewTable returns a Table arming monitors on bus. onDone, when not nil, is
// called once per monitor after it fired or aborted; err is the check
// result.
func NewTable(bus *lifecycle.Bus, check Checker, onDone func(*Monitor, error)) *Table {
	return &Table{
		bus:    bus,
		check:  check,
		onDone: onDone,
		live:   make(map[key]*Monitor),
		unsub:  make(map[*Monitor]func()),
	}
}

// Arm starts watching side of c.Target. If a monitor is already live for
// that pair it is returned unchanged and the second result is false.
func (tb *Table) Arm(c lifecycle.Composition, side lifecycle.Side, classify func() scope.Placement) (*Monitor, bool) {
	k := key{t: c.Target, side: side}
	if mon, ok := tb.live[k]; ok {
		return mon, false
	}

	placement := scope.Unknown
	mon := &Monitor{
		Type:      c.Target,
		Side:      side,
		Component: c.Component,
		frame:     c.Frame,
		check:     tb.check,
		detach:    tb.remove,
		onDone:    tb.onDone,
	}
	mon.Mode = SelectMode(c, func() scope.Placement {
		if classify != nil {
			placement = classify()
		} else {
			placement = scope.Ambiguous
		}
		return placement
	})
	mon.Placement = placement
	if mon.Mode == Episode {
		mon.count = c.Open
	}

	tb.live[k] = mon
	tb.unsub[mon] = tb.bus.Subscribe(mon)
	return mon, true
}

// Lookup returns the live monitor for (t, side).
func (tb *Table) Lookup(t *object.Type, side lifecycle.Side) (*Monitor, bool) {
	mon, ok := tb.live[key{t: t, side: side}]
	return mon, ok
}

// Len returns the number of live monitors.
func (tb *Table) Len() int { return len(tb.live) }

// Reset aborts every live monitor.
func (tb *Table) Reset() {
	for _, mon := range tb.live {
		mon.abort()
	}
}

func (tb *Table) remove(mon *Monitor) {
	delete(tb.live, key{t: mon.Type, side: mon.Side})
	if unsub, ok := tb.unsub[mon]; ok {
		unsub()
		delete(tb.unsub, mon)
	}
}
