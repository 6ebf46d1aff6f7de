// Package construct executes type definitions against an object universe and
// publishes every construction step as a lifecycle event.
//
// Front-ends drive a Machine: they open class and module scopes, run blocks,
// create types dynamically and apply include/extend directives. Whenever a
// component is attached the Machine calls its Hooks before continuing, and
// every error leaving one of its operations is published once as a Failure
// event.
package construct

import (
	"errors"
	"fmt"

	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	"github.com/rs/zerolog"
)

// Hooks is notified when a component is attached to a type.
type Hooks interface {
	Attached(lifecycle.Composition) error
}

// Body is the code of an opening scope or of a dynamic construction block.
// It receives the type being defined.
type Body func(t *object.Type) error

type frame struct {
	id     int
	blocks int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger used to trace construction steps.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// Machine is the construction subsystem of one session. It is not safe for
// concurrent use.
type Machine struct {
	u     *object.Universe
	bus   *lifecycle.Bus
	hooks Hooks
	log   zerolog.Logger

	frames    []*frame
	nextFrame int
	open      map[*object.Type]int
	fresh     map[*object.Type]bool
	failing   error
}

// New returns a Machine positioned at the top level of a program.
// hooks may be nil.
func New(u *object.Universe, bus *lifecycle.Bus, hooks Hooks, opts ...Option) *Machine {
	m := &Machine{
		u:     u,
		bus:   bus,
		hooks: hooks,
		log:   zerolog.Nop(),
		open:  make(map[*object.Type]int),
		fresh: make(map[*object.Type]bool),
	}
	m.frames = []*frame{{id: 0}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Universe() *object.Universe { return m.u }
func (m *Machine) Bus() *lifecycle.Bus        { return m.bus }

// Depth returns the block nesting of the current frame.
func (m *Machine) Depth() int { return m.top().blocks }

// Frame returns the id of the current frame. Frame 0 is the program.
func (m *Machine) Frame() int { return m.top().id }

// Open returns how many opening scopes of t are executing.
func (m *Machine) Open(t *object.Type) int { return m.open[t] }

// Constructing reports whether t is still materializing or has a scope open.
func (m *Machine) Constructing(t *object.Type) bool {
	return m.fresh[t] || m.open[t] > 0
}

func (m *Machine) top() *frame { return m.frames[len(m.frames)-1] }

// idle reports whether no scope and no block is executing.
func (m *Machine) idle() bool {
	return len(m.frames) == 1 && m.frames[0].blocks == 0
}

// begin starts a public operation. A failure left over from an earlier
// top-level statement is forgotten once nothing is executing any more.
func (m *Machine) begin() {
	if m.idle() {
		m.failing = nil
	}
}

// ---- Scopes ----------------------------------------------------------------

// DefineClass opens the class bound to name, creating it when unbound.
// A new class derives from super (the root class when nil) and the derive
// hook runs before its body. Reopening checks that super, when given,
// matches the existing superclass.
func (m *Machine) DefineClass(name string, super *object.Type, site scope.Site, body Body) (*object.Type, error) {
	m.begin()
	t, created, err := m.resolveClass(name, super)
	if err != nil {
		return nil, m.fail(err)
	}
	if created {
		m.fresh[t] = true
		m.u.Bind(name, t)
		err = m.attach(lifecycle.Composition{
			Kind:      lifecycle.Derive,
			Target:    t,
			Component: t.Super(),
			Sides:     []lifecycle.Side{lifecycle.Instance, lifecycle.Singleton},
			Site:      site,
			Fresh:     true,
		})
		if err == nil {
			err = m.runScope(t, body)
		}
		delete(m.fresh, t)
		if err != nil {
			m.u.Unbind(name)
			return nil, m.fail(err)
		}
		return t, nil
	}
	if err := m.runScope(t, body); err != nil {
		return nil, m.fail(err)
	}
	return t, nil
}

func (m *Machine) resolveClass(name string, super *object.Type) (*object.Type, bool, error) {
	if existing, ok := m.u.Lookup(name); ok {
		if !existing.IsClass() {
			return nil, false, fmt.Errorf("phase=define type=%s: %w", name, object.ErrNotClass)
		}
		if super != nil && existing.Super() != super {
			return nil, false, fmt.Errorf("phase=define type=%s: %w", name, object.ErrSuperclassMismatch)
		}
		return existing, false, nil
	}
	t, err := m.u.NewClass(super)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// DefineModule opens the module bound to name, creating it when unbound.
func (m *Machine) DefineModule(name string, site scope.Site, body Body) (*object.Type, error) {
	m.begin()
	if existing, ok := m.u.Lookup(name); ok {
		if !existing.IsModule() {
			return nil, m.fail(fmt.Errorf("phase=define type=%s: %w", name, object.ErrNotModule))
		}
		if err := m.runScope(existing, body); err != nil {
			return nil, m.fail(err)
		}
		return existing, nil
	}

	t := m.u.NewModule()
	m.u.Bind(name, t)
	m.fresh[t] = true
	err := m.runScope(t, body)
	delete(m.fresh, t)
	if err != nil {
		m.u.Unbind(name)
		return nil, m.fail(err)
	}
	return t, nil
}

// OpenSingleton runs body in the singleton scope of t.
func (m *Machine) OpenSingleton(t *object.Type, body Body) error {
	m.begin()
	if t == nil {
		return m.fail(ErrNilType)
	}
	if err := m.runScope(t.Meta(), body); err != nil {
		return m.fail(err)
	}
	return nil
}

// runScope executes body in a new frame between ScopeOpen and ScopeClose.
// A failing body produces no ScopeClose.
func (m *Machine) runScope(t *object.Type, body Body) error {
	m.open[t]++
	m.nextFrame++
	f := &frame{id: m.nextFrame}
	m.frames = append(m.frames, f)

	err := m.publish(lifecycle.Event{Kind: lifecycle.ScopeOpen, Type: t, Frame: f.id})
	if err == nil && body != nil {
		err = body(t)
	}

	m.frames = m.frames[:len(m.frames)-1]
	if m.open[t]--; m.open[t] == 0 {
		delete(m.open, t)
	}
	if err != nil {
		return m.fail(err)
	}
	outer := m.top()
	return m.publish(lifecycle.Event{Kind: lifecycle.ScopeClose, Type: t, Frame: outer.id, Depth: outer.blocks})
}

// ---- Dynamic construction ----------------------------------------------------

// NewClass creates an anonymous class deriving from super. body, when not
// nil, runs as the class scope before the construction returns.
func (m *Machine) NewClass(super *object.Type, site scope.Site, body Body) (*object.Type, error) {
	m.begin()
	t, err := m.u.NewClass(super)
	if err != nil {
		return nil, m.fail(err)
	}
	m.fresh[t] = true
	err = m.attach(lifecycle.Composition{
		Kind:      lifecycle.Derive,
		Target:    t,
		Component: t.Super(),
		Sides:     []lifecycle.Side{lifecycle.Instance, lifecycle.Singleton},
		Site:      site,
		Fresh:     true,
	})
	return m.finishConstruct(t, body, err)
}

// NewModule creates an anonymous module.
func (m *Machine) NewModule(site scope.Site, body Body) (*object.Type, error) {
	m.begin()
	t := m.u.NewModule()
	m.fresh[t] = true
	return m.finishConstruct(t, body, nil)
}

func (m *Machine) finishConstruct(t *object.Type, body Body, err error) (*object.Type, error) {
	if err == nil && body != nil {
		err = m.runScope(t, body)
	}
	delete(m.fresh, t)
	if err != nil {
		return nil, m.fail(err)
	}
	top := m.top()
	err = m.publish(lifecycle.Event{
		Kind:   lifecycle.ConstructReturn,
		Type:   t,
		Frame:  top.id,
		Depth:  top.blocks,
		Bodied: body != nil,
	})
	if err != nil {
		return nil, m.fail(err)
	}
	return t, nil
}

// ---- Directives --------------------------------------------------------------

// Include appends component to the ancestors of base. Including into a
// singleton side is reported as a singleton-side composition of the type it
// is attached to.
func (m *Machine) Include(base, component *object.Type, site scope.Site) error {
	m.begin()
	if base == nil || component == nil {
		return m.fail(ErrNilType)
	}
	if _, err := base.Include(component); err != nil {
		return m.fail(err)
	}
	target, side := base, lifecycle.Instance
	if base.IsSingleton() {
		target, side = base.Attached(), lifecycle.Singleton
	}
	return m.directive(lifecycle.Include, target, component, side, site)
}

// Prepend places component in front of base in its ancestor chain. Like
// Include it composes the instance side, or the singleton side of the
// attached type when base is a singleton.
func (m *Machine) Prepend(base, component *object.Type, site scope.Site) error {
	m.begin()
	if base == nil || component == nil {
		return m.fail(ErrNilType)
	}
	if _, err := base.Prepend(component); err != nil {
		return m.fail(err)
	}
	target, side := base, lifecycle.Instance
	if base.IsSingleton() {
		target, side = base.Attached(), lifecycle.Singleton
	}
	return m.directive(lifecycle.Prepend, target, component, side, site)
}

// Extend appends component to the ancestors of the singleton side of base.
func (m *Machine) Extend(base, component *object.Type, site scope.Site) error {
	m.begin()
	if base == nil || component == nil {
		return m.fail(ErrNilType)
	}
	if _, err := base.Meta().Include(component); err != nil {
		return m.fail(err)
	}
	return m.directive(lifecycle.Extend, base, component, lifecycle.Singleton, site)
}

func (m *Machine) directive(kind lifecycle.CompositionKind, target, component *object.Type, side lifecycle.Side, site scope.Site) error {
	open := m.open[target]
	if side == lifecycle.Singleton && target.HasMeta() {
		open += m.open[target.Meta()]
	}
	top := m.top()
	err := m.attach(lifecycle.Composition{
		Kind:      kind,
		Target:    target,
		Component: component,
		Sides:     []lifecycle.Side{side},
		Site:      site,
		Frame:     top.id,
		Depth:     top.blocks,
		Open:      open,
		Fresh:     m.fresh[target],
	})
	if err == nil {
		err = m.publish(lifecycle.Event{Kind: lifecycle.DirectiveReturn, Type: target, Frame: top.id, Depth: top.blocks})
	}
	if err != nil {
		return m.fail(err)
	}
	return nil
}

// ---- Blocks and members ------------------------------------------------------

// Block runs fn as a nested block or callback of the current frame.
func (m *Machine) Block(fn func() error) error {
	m.begin()
	f := m.top()
	f.blocks++
	err := m.publish(lifecycle.Event{Kind: lifecycle.BlockEnter, Frame: f.id, Depth: f.blocks})
	if err == nil {
		err = fn()
	}
	f.blocks--
	if err != nil {
		return m.fail(err)
	}
	if err := m.publish(lifecycle.Event{Kind: lifecycle.BlockExit, Frame: f.id, Depth: f.blocks}); err != nil {
		return m.fail(err)
	}
	return nil
}

// Define adds a member to owner.
func (m *Machine) Define(owner *object.Type, name string, body any) *object.Method {
	meth := owner.Define(name, body)
	m.log.Trace().Str("owner", owner.Name()).Str("member", name).Msg("member defined")
	return meth
}

// ---- Failures ----------------------------------------------------------------

// Raise starts propagating err from construction code and returns it.
func (m *Machine) Raise(err error) error {
	m.begin()
	return m.fail(err)
}

// Failing returns the error currently propagating, if any.
func (m *Machine) Failing() error { return m.failing }

// fail publishes a Failure event the first time err leaves an operation.
// An error wrapping the failure already propagating is the same failure.
func (m *Machine) fail(err error) error {
	if err == nil {
		return nil
	}
	if m.failing != nil && errors.Is(err, m.failing) {
		return err
	}
	m.failing = err
	top := m.top()
	if perr := m.bus.Publish(lifecycle.Event{Kind: lifecycle.Failure, Frame: top.id, Depth: top.blocks, Err: err}); perr != nil {
		m.log.Debug().Err(perr).Msg("listener failed while observing failure")
	}
	return err
}

func (m *Machine) attach(c lifecycle.Composition) error {
	if m.hooks == nil {
		return nil
	}
	return m.hooks.Attached(c)
}

func (m *Machine) publish(e lifecycle.Event) error {
	m.log.Trace().Stringer("event", e).Msg("lifecycle")
	return m.bus.Publish(e)
}
