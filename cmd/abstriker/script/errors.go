package script

import (
	"errors"
	"fmt"

	"abstriker/cmd/abstriker/closure"
	"abstriker/cmd/abstriker/object"
)

var (
	ErrSyntax      = errors.New("syntax error")
	ErrUnsupported = errors.New("unsupported construct")
	ErrRaised      = errors.New("raised by script")
	ErrNoMethod    = errors.New("undefined method")
)

// ViolationClass is the exception class a contract violation surfaces as.
const ViolationClass = "Abstriker::NotImplementedError"

// Error is an exception propagating out of a script, located at the
// statement that raised it.
type Error struct {
	Class string
	Msg   string
	Path  string
	Line  int
	Err   error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s (%s)", e.Path, e.Line, e.Msg, e.Class)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Msg, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// exceptionParents lists the ancestors of the built-in exception classes,
// most specific first.
var exceptionParents = map[string][]string{
	"StandardError":       {"Exception"},
	"RuntimeError":        {"StandardError", "Exception"},
	"ArgumentError":       {"StandardError", "Exception"},
	"LocalJumpError":      {"StandardError", "Exception"},
	"TypeError":           {"StandardError", "Exception"},
	"NameError":           {"StandardError", "Exception"},
	"NoMethodError":       {"NameError", "StandardError", "Exception"},
	"ScriptError":         {"Exception"},
	"SyntaxError":         {"ScriptError", "Exception"},
	"NotImplementedError": {"ScriptError", "Exception"},
	ViolationClass:        {"NotImplementedError", "ScriptError", "Exception"},
}

// isException reports whether name is a known exception class.
func isException(name string) bool {
	_, ok := exceptionParents[name]
	return ok || name == "Exception"
}

// kindOf reports whether an exception of class is rescued by a clause
// naming want.
func kindOf(class, want string) bool {
	if class == want {
		return true
	}
	for _, p := range exceptionParents[class] {
		if p == want {
			return true
		}
	}
	// unknown classes raised with `raise Name, msg` behave like RuntimeError
	if _, known := exceptionParents[class]; !known {
		return want == "StandardError" || want == "Exception"
	}
	return false
}

// classOf maps an error leaving the construction machine to the exception
// class a script sees.
func classOf(err error) string {
	var v *closure.Violation
	switch {
	case errors.As(err, &v):
		return ViolationClass
	case errors.Is(err, object.ErrUnknownConstant):
		return "NameError"
	case errors.Is(err, object.ErrNotModule),
		errors.Is(err, object.ErrNotClass),
		errors.Is(err, object.ErrSuperclassMismatch),
		errors.Is(err, object.ErrConstantKind):
		return "TypeError"
	case errors.Is(err, object.ErrCycleDetected):
		return "ArgumentError"
	}
	return "RuntimeError"
}
