// Package object is the host object space: classes, modules and their
// singleton sides, with ancestor linearization and member resolution.
//
// A Universe is not safe for concurrent use. It belongs to one session and
// is mutated only by the goroutine executing definitions.
package object

import (
	"fmt"
	"sort"
)

// RootName is the name of the implicit root class.
const RootName = "Object"

// Universe owns every type created in one session and the constants that
// name them.
type Universe struct {
	nextID int
	gen    uint64
	all    []*Type
	consts map[string]*Type
	object *Type
}

// NewUniverse returns a Universe holding only the root class.
func NewUniverse() *Universe {
	u := &Universe{consts: make(map[string]*Type)}
	u.object = u.newType(KindClass, nil)
	u.Bind(RootName, u.object)
	return u
}

// Object returns the root class. Classes created without a superclass
// derive from it.
func (u *Universe) Object() *Type { return u.object }

// Generation changes every time a type is created or mutated. Resolution
// tables built for an older generation are rebuilt on the next Seal.
func (u *Universe) Generation() uint64 { return u.gen }

// NewClass creates an anonymous class deriving from super (the root class
// when super is nil). It returns ErrNotClass if super is a module or a
// singleton side.
func (u *Universe) NewClass(super *Type) (*Type, error) {
	if super == nil {
		super = u.object
	}
	if super.kind != KindClass {
		return nil, fmt.Errorf("phase=derive type=%s: %w", super.Name(), ErrNotClass)
	}
	return u.newType(KindClass, super), nil
}

// NewModule creates an anonymous module.
func (u *Universe) NewModule() *Type {
	return u.newType(KindModule, nil)
}

func (u *Universe) newType(kind Kind, super *Type) *Type {
	u.nextID++
	u.gen++
	t := &Type{
		id:      u.nextID,
		kind:    kind,
		super:   super,
		methods: make(map[string]*Method),
		u:       u,
	}
	if kind != KindSingleton {
		u.all = append(u.all, t)
	}
	return t
}

// Bind assigns name to t in the constants table. The first binding of an
// anonymous type also names it.
func (u *Universe) Bind(name string, t *Type) {
	u.consts[name] = t
	if t.name == "" {
		t.name = name
	}
	u.gen++
}

// Unbind removes a constant. The type keeps its name.
func (u *Universe) Unbind(name string) {
	if _, ok := u.consts[name]; ok {
		delete(u.consts, name)
		u.gen++
	}
}

// Lookup returns the type bound to name.
func (u *Universe) Lookup(name string) (*Type, bool) {
	t, ok := u.consts[name]
	return t, ok
}

// MustLookup is Lookup returning ErrUnknownConstant when name is unbound.
func (u *Universe) MustLookup(name string) (*Type, error) {
	t, ok := u.consts[name]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownConstant, name)
	}
	return t, nil
}

// Constants returns the bound constant names in sorted order.
func (u *Universe) Constants() []string {
	names := make([]string, 0, len(u.consts))
	for n := range u.consts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Types returns every class and module created in this universe, in
// creation order, including anonymous and unbound ones.
func (u *Universe) Types() []*Type {
	out := make([]*Type, len(u.all))
	copy(out, u.all)
	return out
}
