package object

import (
	"fmt"
	"strings"
)

// Kind distinguishes classes, modules and singleton sides.
type Kind int

const (
	KindClass Kind = iota
	KindModule
	KindSingleton
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindModule:
		return "module"
	case KindSingleton:
		return "singleton"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Method is a member definition owned by exactly one type.
// Body is opaque to the object space; front-ends store whatever they need.
type Method struct {
	Name  string
	Owner *Type
	Body  any
}

// Type is a class, a module or the singleton side of either.
type Type struct {
	id       int
	name     string
	kind     Kind
	super    *Type
	includes []*Type // most recent first
	prepends []*Type // most recent first
	methods  map[string]*Method
	order    []string
	meta     *Type
	attached *Type
	u        *Universe

	table    *ResolutionTable
	tableGen uint64
}

func (t *Type) ID() int      { return t.id }
func (t *Type) Kind() Kind   { return t.kind }
func (t *Type) Super() *Type { return t.super }

func (t *Type) IsClass() bool     { return t.kind == KindClass }
func (t *Type) IsModule() bool    { return t.kind == KindModule }
func (t *Type) IsSingleton() bool { return t.kind == KindSingleton }

// Attached returns the type whose singleton side t is, or nil.
func (t *Type) Attached() *Type { return t.attached }

// Universe returns the universe that created t.
func (t *Type) Universe() *Universe { return t.u }

// Named reports whether t has been bound to a constant at least once.
// Singleton sides are named after their attached type.
func (t *Type) Named() bool {
	if t.kind == KindSingleton {
		return t.attached.Named()
	}
	return t.name != ""
}

// Name returns the constant name of t, or an inspect-style placeholder for
// anonymous types.
func (t *Type) Name() string {
	switch {
	case t.kind == KindSingleton:
		return "#<Class:" + t.attached.Name() + ">"
	case t.name != "":
		return t.name
	case t.kind == KindModule:
		return fmt.Sprintf("#<Module:0x%04x>", t.id)
	default:
		return fmt.Sprintf("#<Class:0x%04x>", t.id)
	}
}

func (t *Type) String() string { return t.Name() }

// Meta returns the singleton side of t, creating it on first use.
func (t *Type) Meta() *Type {
	if t.meta == nil {
		m := t.u.newType(KindSingleton, nil)
		m.attached = t
		t.meta = m
	}
	return t.meta
}

// HasMeta reports whether the singleton side has been materialized.
func (t *Type) HasMeta() bool { return t.meta != nil }

// Includes returns the modules directly included into t, most recent first.
func (t *Type) Includes() []*Type {
	out := make([]*Type, len(t.includes))
	copy(out, t.includes)
	return out
}

// Prepends returns the modules directly prepended to t, most recent first.
func (t *Type) Prepends() []*Type {
	out := make([]*Type, len(t.prepends))
	copy(out, t.prepends)
	return out
}

// Include inserts module m into t's ancestor chain right after t.
// Including a module already in the chain is a no-op; the first return value
// reports whether the chain changed.
func (t *Type) Include(m *Type) (bool, error) {
	if err := t.composable("include", m); err != nil {
		return false, err
	}
	if t.IsA(m) {
		return false, nil
	}
	t.includes = append([]*Type{m}, t.includes...)
	t.u.gen++
	return true, nil
}

// Prepend inserts module m into t's ancestor chain right before t.
// Prepending a module already in front of t is a no-op.
func (t *Type) Prepend(m *Type) (bool, error) {
	if err := t.composable("prepend", m); err != nil {
		return false, err
	}
	for _, a := range t.front() {
		if a == m {
			return false, nil
		}
	}
	t.prepends = append([]*Type{m}, t.prepends...)
	t.u.gen++
	return true, nil
}

func (t *Type) composable(phase string, m *Type) error {
	if m.kind != KindModule {
		return fmt.Errorf("phase=%s type=%s arg=%s: %w", phase, t.Name(), m.Name(), ErrNotModule)
	}
	if m == t {
		return fmt.Errorf("phase=%s type=%s: %w", phase, t.Name(), ErrCycleDetected)
	}
	for _, a := range m.Ancestors() {
		if a == t {
			return fmt.Errorf("phase=%s type=%s arg=%s: %w", phase, t.Name(), m.Name(), ErrCycleDetected)
		}
	}
	return nil
}

// front expands the prepended modules of t, most recent first.
func (t *Type) front() []*Type {
	var out []*Type
	seen := make(map[*Type]bool)
	for _, m := range t.prepends {
		for _, a := range m.Ancestors() {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Define adds or replaces the member name owned by t.
func (t *Type) Define(name string, body any) *Method {
	m := &Method{Name: name, Owner: t, Body: body}
	if _, exists := t.methods[name]; !exists {
		t.order = append(t.order, name)
	}
	t.methods[name] = m
	t.u.gen++
	return m
}

// Method returns the member named name owned by t itself.
func (t *Type) Method(name string) (*Method, bool) {
	m, ok := t.methods[name]
	return m, ok
}

// Methods returns the members owned by t in definition order.
func (t *Type) Methods() []*Method {
	out := make([]*Method, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.methods[n])
	}
	return out
}

// parent is the next type in the resolution order after t's own modules.
func (t *Type) parent() *Type {
	switch t.kind {
	case KindClass:
		return t.super
	case KindSingleton:
		if a := t.attached; a.kind == KindClass && a.super != nil {
			return a.super.Meta()
		}
	}
	return nil
}

// Ancestors returns the linearized ancestor chain, most specific first.
//
// Prepended modules (most recent first, each expanded to its own chain) come
// before t itself. A type is followed by its included modules, expanded the
// same way, and then by its superclass chain. Modules already present in the
// superclass chain are not repeated. The singleton side of a class continues
// with the singleton side of its superclass.
func (t *Type) Ancestors() []*Type {
	var tail []*Type
	if p := t.parent(); p != nil {
		tail = p.Ancestors()
	}
	inTail := make(map[*Type]bool, len(tail))
	for _, a := range tail {
		inTail[a] = true
	}

	out := t.front()
	seen := make(map[*Type]bool, len(out)+1)
	for _, a := range out {
		seen[a] = true
	}
	out = append(out, t)
	seen[t] = true
	for _, m := range t.includes {
		for _, a := range m.Ancestors() {
			if seen[a] || inTail[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return append(out, tail...)
}

// IsA reports whether other appears in t's ancestor chain.
func (t *Type) IsA(other *Type) bool {
	for _, a := range t.Ancestors() {
		if a == other {
			return true
		}
	}
	return false
}

// FormatChain renders an ancestor chain as "A < B < C".
func FormatChain(chain []*Type) string {
	names := make([]string, len(chain))
	for i, a := range chain {
		names[i] = a.Name()
	}
	return strings.Join(names, " < ")
}
