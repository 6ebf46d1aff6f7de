// Package closure verifies that every abstract member reachable through a
// type's ancestor chain has an override more specific than its declaring
// component.
package closure

import (
	"errors"
	"fmt"

	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
)

// ErrNotImplemented is matched by every Violation.
var ErrNotImplemented = errors.New("abstract member not implemented")

// Members is the read side of the member registry.
type Members interface {
	MembersOf(component *object.Type) []string
}

// Violation names the first abstract member a finished type leaves
// unimplemented.
type Violation struct {
	Type      *object.Type
	Side      lifecycle.Side
	Component *object.Type
	Member    string
	// Owner is the type the member resolved to, or nil if it did not
	// resolve at all.
	Owner *object.Type
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s is abstract, but not implemented by %s", v.Qualified(), v.Type.Name())
}

// Qualified renders the member the way Qualify does.
func (v *Violation) Qualified() string { return Qualify(v.Component, v.Member) }

// Qualify renders member as Component#member, or Attached.member when
// component is a singleton side.
func Qualify(component *object.Type, member string) string {
	if component.IsSingleton() {
		return component.Attached().Name() + "." + member
	}
	return component.Name() + "#" + member
}

func (v *Violation) Is(target error) bool { return target == ErrNotImplemented }

// Check walks the ancestors of the side of t that follow the checked type
// itself, most specific first, and returns the first abstract member
// whose resolution is missing or does not come from something more specific
// than its declaring component. It returns nil when the contract holds.
func Check(t *object.Type, side lifecycle.Side, reg Members) *Violation {
	subject := lifecycle.SideType(t, side)
	table := subject.Seal()
	chain := table.Ancestors()
	for i := table.Index(subject) + 1; i < len(chain); i++ {
		component := chain[i]
		for _, name := range reg.MembersOf(component) {
			m, ok := table.Lookup(name)
			if ok && table.Index(m.Owner) < i {
				continue
			}
			v := &Violation{Type: t, Side: side, Component: component, Member: name}
			if ok {
				v.Owner = m.Owner
			}
			return v
		}
	}
	return nil
}
