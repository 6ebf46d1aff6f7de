package decl

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrUnknownType     = errors.New("unknown type")
	ErrNotComponent    = errors.New("abstract members require a component")
	ErrRaised          = errors.New("raised by document")
)

// Error locates a failure at the document entry that caused it.
type Error struct {
	Path string
	Unit string
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("phase=apply path=%s (%s:%d): %v", e.Path, e.Unit, e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
