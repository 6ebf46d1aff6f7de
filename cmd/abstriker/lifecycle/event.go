// Package lifecycle defines the construction events published by the
// construction machine and the bus that delivers them.
package lifecycle

import (
	"fmt"

	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"
)

// Kind identifies a construction event.
type Kind int

const (
	// ScopeOpen: an opening scope (class, module or singleton body) begins.
	ScopeOpen Kind = iota
	// ScopeClose: an opening scope reached its natural end.
	ScopeClose
	// BlockEnter: a block or callback starts running.
	BlockEnter
	// BlockExit: a block or callback returned normally.
	BlockExit
	// ConstructReturn: a dynamic construction (Class.new, Module.new)
	// returned its type.
	ConstructReturn
	// DirectiveReturn: an include, prepend or extend directive returned.
	DirectiveReturn
	// Failure: an error is propagating out of construction code.
	Failure
)

func (k Kind) String() string {
	switch k {
	case ScopeOpen:
		return "scope-open"
	case ScopeClose:
		return "scope-close"
	case BlockEnter:
		return "block-enter"
	case BlockExit:
		return "block-exit"
	case ConstructReturn:
		return "construct-return"
	case DirectiveReturn:
		return "directive-return"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one construction step.
//
// Type is the type whose scope opened or closed, the type a construction
// returned, or the target of a directive. Frame identifies the scope body
// the event happened in and Depth is the block nesting of that frame after
// the event was applied. Bodied is set on ConstructReturn when a body ran.
type Event struct {
	Kind   Kind
	Type   *object.Type
	Frame  int
	Depth  int
	Bodied bool
	Err    error
}

func (e Event) String() string {
	name := "<none>"
	if e.Type != nil {
		name = e.Type.Name()
	}
	return fmt.Sprintf("%s type=%s frame=%d depth=%d", e.Kind, name, e.Frame, e.Depth)
}

// CompositionKind identifies how a component is attached.
type CompositionKind int

const (
	Derive CompositionKind = iota
	Include
	Extend
	Prepend
)

func (k CompositionKind) String() string {
	switch k {
	case Derive:
		return "derive"
	case Include:
		return "include"
	case Extend:
		return "extend"
	case Prepend:
		return "prepend"
	}
	return fmt.Sprintf("composition(%d)", int(k))
}

// Side selects the instance or the singleton side of a type.
type Side int

const (
	Instance Side = iota
	Singleton
)

func (s Side) String() string {
	if s == Singleton {
		return "singleton"
	}
	return "instance"
}

// Composition describes a component being attached to a type.
//
// Target is never a singleton side: a directive applied to a singleton is
// reported against its attached type with Sides set to Singleton. Open is the
// number of opening scopes of the affected side currently executing and
// Fresh marks a type that is still materializing.
type Composition struct {
	Kind      CompositionKind
	Target    *object.Type
	Component *object.Type
	Sides     []Side
	Site      scope.Site
	Frame     int
	Depth     int
	Open      int
	Fresh     bool
}

// SideType returns the type checked for side.
func SideType(t *object.Type, side Side) *object.Type {
	if side == Singleton {
		return t.Meta()
	}
	return t
}
