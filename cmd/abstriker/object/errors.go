package object

import "errors"

var (
	ErrNotModule          = errors.New("not a module")
	ErrNotClass           = errors.New("not a class")
	ErrCycleDetected      = errors.New("cyclic include detected")
	ErrSuperclassMismatch = errors.New("superclass mismatch")
	ErrUnknownConstant    = errors.New("uninitialized constant")
	ErrConstantKind       = errors.New("constant is not a class or module")
)
