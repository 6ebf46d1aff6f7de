// Package engine wires the member registry, the scope classifier and the
// composition monitors into the hook called by the construction machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"abstriker/cmd/abstriker/closure"
	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/monitor"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/registry"
	"abstriker/cmd/abstriker/scope"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Monitor arming and detaching are logged
// at debug level, violations at info level.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRegisterer registers the engine metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = r }
}

// WithRegistry shares an existing member registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.reg = r
		}
	}
}

// WithClassifierOptions configures the scope classifier.
func WithClassifierOptions(opts ...scope.Option) Option {
	return func(e *Engine) { e.clsOpts = append(e.clsOpts, opts...) }
}

// WithEnabled sets the initial state of the toggle.
func WithEnabled(v bool) Option {
	return func(e *Engine) { e.enabled.Store(v) }
}

// Engine decides which compositions are monitored and how their check ends.
// The toggle and the registry are safe for concurrent use; sessions are not.
type Engine struct {
	enabled atomic.Bool
	reg     *registry.Registry
	cls     *scope.Classifier
	log     zerolog.Logger
	met     *metrics

	registerer prometheus.Registerer
	clsOpts    []scope.Option
}

// New returns an enabled Engine with an empty registry.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		reg: registry.New(),
		log: zerolog.Nop(),
	}
	e.enabled.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	cls, err := scope.New(append([]scope.Option{scope.WithLogger(e.log)}, e.clsOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating classifier: %w", err)
	}
	e.cls = cls
	e.met = newMetrics(e.registerer)
	return e, nil
}

// Enabled reports the toggle. A disabled engine never arms a monitor.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// SetEnabled flips the toggle. Monitors already armed finish their episode.
func (e *Engine) SetEnabled(v bool) { e.enabled.Store(v) }

func (e *Engine) Registry() *registry.Registry  { return e.reg }
func (e *Engine) Classifier() *scope.Classifier { return e.cls }

// DeclareAbstract records name as an abstract member of component.
func (e *Engine) DeclareAbstract(component *object.Type, name string) {
	e.reg.DeclareAbstract(component, name)
	e.log.Debug().Str("component", component.Name()).Str("member", name).Msg("abstract member declared")
}

// relevant reports whether attaching component can bring abstract members
// into a chain: some ancestor of it, on either side, is a component.
func (e *Engine) relevant(component *object.Type) bool {
	if component == nil {
		return false
	}
	for _, a := range component.Ancestors() {
		if e.reg.Enabled(a) {
			return true
		}
	}
	if component.HasMeta() {
		for _, a := range component.Meta().Ancestors() {
			if e.reg.Enabled(a) {
				return true
			}
		}
	}
	return false
}

// Declarable reports whether t may declare abstract members: t or one of its
// ancestors is a component. A singleton type follows its attached type.
func (e *Engine) Declarable(t *object.Type) bool {
	for cur := t; cur != nil; {
		for _, a := range cur.Ancestors() {
			if e.reg.Enabled(a) {
				return true
			}
		}
		if !cur.IsSingleton() {
			return false
		}
		cur = cur.Attached()
	}
	return false
}

func (e *Engine) check(t *object.Type, side lifecycle.Side) error {
	if v := closure.Check(t, side, e.reg); v != nil {
		return v
	}
	return nil
}

// ---- Hook --------------------------------------------------------------------

// Outcome records how one monitored episode ended.
type Outcome struct {
	Type      *object.Type
	Side      lifecycle.Side
	Component *object.Type
	Mode      monitor.Mode
	Placement scope.Placement
	State     monitor.State
	Violation *closure.Violation
}

// Hook is the construction hook of one session. It arms monitors on the
// session bus and remembers their outcomes.
type Hook struct {
	e        *Engine
	ctx      context.Context
	table    *monitor.Table
	outcomes []Outcome
}

// NewHook returns a hook arming monitors on bus.
func (e *Engine) NewHook(ctx context.Context, bus *lifecycle.Bus) *Hook {
	h := &Hook{e: e, ctx: ctx}
	h.table = monitor.NewTable(bus, e.check, h.done)
	return h
}

// Attached implements construct.Hooks.
func (h *Hook) Attached(c lifecycle.Composition) error {
	if !h.e.Enabled() || !h.e.relevant(c.Component) {
		return nil
	}
	for _, side := range c.Sides {
		classify := func() scope.Placement {
			return h.e.cls.Classify(h.ctx, c.Site, c.Target.Name())
		}
		mon, armed := h.table.Arm(c, side, classify)
		if !armed {
			continue
		}
		h.e.met.armed.WithLabelValues(side.String()).Inc()
		h.e.met.live.Inc()
		h.e.log.Debug().
			Str("type", c.Target.Name()).
			Str("side", side.String()).
			Str("component", c.Component.Name()).
			Str("composition", c.Kind.String()).
			Str("mode", mon.Mode.String()).
			Str("placement", mon.Placement.String()).
			Stringer("site", c.Site).
			Msg("monitor armed")
	}
	return nil
}

func (h *Hook) done(mon *monitor.Monitor, err error) {
	side := mon.Side.String()
	h.e.met.live.Dec()
	out := Outcome{
		Type:      mon.Type,
		Side:      mon.Side,
		Component: mon.Component,
		Mode:      mon.Mode,
		Placement: mon.Placement,
		State:     mon.State(),
	}
	switch mon.State() {
	case monitor.Aborted:
		h.e.met.aborted.WithLabelValues(side).Inc()
		h.e.log.Debug().Str("type", mon.Type.Name()).Str("side", side).Msg("monitor aborted")
	case monitor.Fired:
		h.e.met.fired.WithLabelValues(side).Inc()
		var v *closure.Violation
		if errors.As(err, &v) {
			out.Violation = v
			h.e.met.violations.WithLabelValues(side).Inc()
			h.e.log.Info().
				Str("type", v.Type.Name()).
				Str("side", side).
				Str("component", v.Component.Name()).
				Str("member", v.Member).
				Msg("abstract member not implemented")
		} else {
			h.e.log.Debug().Str("type", mon.Type.Name()).Str("side", side).Msg("monitor fired")
		}
	}
	h.outcomes = append(h.outcomes, out)
}

// Outcomes returns the finished episodes in the order they ended.
func (h *Hook) Outcomes() []Outcome {
	out := make([]Outcome, len(h.outcomes))
	copy(out, h.outcomes)
	return out
}

// Live returns the number of armed monitors.
func (h *Hook) Live() int { return h.table.Len() }

// Abort detaches every armed monitor without checking.
func (h *Hook) Abort() { h.table.Reset() }

// ---- Process-wide default ------------------------------------------------------

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Default returns the process-wide engine, creating it on first use.
func Default() *Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		e, err := New()
		if err != nil {
			panic(fmt.Sprintf("abstriker: default engine: %v", err))
		}
		defaultEngine = e
	}
	return defaultEngine
}

// SetDefault replaces the process-wide engine.
func SetDefault(e *Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = e
}

// Reset clears the declarations, the classifier cache and the toggle of the
// process-wide engine.
func Reset() {
	e := Default()
	e.reg.Reset()
	e.cls.Purge()
	e.SetEnabled(true)
}
