package script

import (
	"fmt"
	"strconv"
	"strings"

	"abstriker/cmd/abstriker/object"

	sitter "github.com/smacker/go-tree-sitter"
)

// Value is the sealed interface of every runtime value.
// The unexported isValue() method prevents external implementations.
type Value interface {
	isValue()
	Inspect() string
}

type (
	// Nil is nil.
	Nil struct{}
	// Bool is true or false.
	Bool bool
	// Int is an integer literal or the result of integer arithmetic.
	Int int64
	// Str is a string.
	Str string
	// Sym is a symbol; the leading colon is not part of it.
	Sym string
	// Array is an array literal.
	Array struct{ Elems []Value }
	// TypeRef is a class, module or singleton side.
	TypeRef struct{ T *object.Type }
	// Builtin is a constant provided by the runtime itself, such as Class
	// or an exception class name.
	Builtin struct{ Name string }
	// Main is the self of the program level.
	Main struct{}
	// Exception is a rescued error.
	Exception struct{ Err *Error }
)

// Proc is a block captured with the context it was created in.
type Proc struct {
	Params []string
	Body   []*sitter.Node
	Lambda bool
	Line   int

	ctx  *frame
	unit string
	src  []byte
}

// MethodSource is the recorded body of a member defined by a script.
type MethodSource struct {
	Unit  string
	Line  int
	Block bool
}

func (Nil) isValue()        {}
func (Bool) isValue()       {}
func (Int) isValue()        {}
func (Str) isValue()        {}
func (Sym) isValue()        {}
func (*Array) isValue()     {}
func (TypeRef) isValue()    {}
func (Builtin) isValue()    {}
func (Main) isValue()       {}
func (*Exception) isValue() {}
func (*Proc) isValue()      {}

func (Nil) Inspect() string       { return "nil" }
func (b Bool) Inspect() string    { return strconv.FormatBool(bool(b)) }
func (i Int) Inspect() string     { return strconv.FormatInt(int64(i), 10) }
func (s Str) Inspect() string     { return strconv.Quote(string(s)) }
func (s Sym) Inspect() string     { return ":" + string(s) }
func (t TypeRef) Inspect() string { return t.T.Name() }
func (b Builtin) Inspect() string { return b.Name }
func (Main) Inspect() string      { return "main" }

func (a *Array) Inspect() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (e *Exception) Inspect() string {
	return fmt.Sprintf("#<%s: %s>", e.Err.Class, e.Err.Msg)
}

func (p *Proc) Inspect() string {
	if p.Lambda {
		return fmt.Sprintf("#<Proc:line %d (lambda)>", p.Line)
	}
	return fmt.Sprintf("#<Proc:line %d>", p.Line)
}

// toS renders v the way puts does.
func toS(v Value) string {
	switch v := v.(type) {
	case Nil:
		return ""
	case Str:
		return string(v)
	case Sym:
		return string(v)
	case *Exception:
		return v.Err.Msg
	}
	return v.Inspect()
}

// truthy is false only for nil and false.
func truthy(v Value) bool {
	switch v := v.(type) {
	case nil, Nil:
		return false
	case Bool:
		return bool(v)
	}
	return true
}

func equal(a, b Value) bool {
	switch a := a.(type) {
	case TypeRef:
		b, ok := b.(TypeRef)
		return ok && a.T == b.T
	case *Array:
		b, ok := b.(*Array)
		if !ok || len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case *Proc, *Exception:
		return a == b
	}
	return a == b
}

// className returns the class of v as the runtime names it.
func className(v Value) string {
	switch v := v.(type) {
	case Nil:
		return "NilClass"
	case Bool:
		if v {
			return "TrueClass"
		}
		return "FalseClass"
	case Int:
		return "Integer"
	case Str:
		return "String"
	case Sym:
		return "Symbol"
	case *Array:
		return "Array"
	case TypeRef:
		if v.T.IsModule() {
			return "Module"
		}
		return "Class"
	case Builtin:
		return "Class"
	case Main:
		return "Object"
	case *Exception:
		return v.Err.Class
	case *Proc:
		return "Proc"
	}
	return "Object"
}
