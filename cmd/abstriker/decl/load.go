package decl

import (
	"errors"
	"fmt"
	"os"

	"abstriker/cmd/abstriker/construct"
	"abstriker/cmd/abstriker/engine"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	"github.com/rs/zerolog"
)

// Source records where a member was declared.
type Source struct {
	Unit string
	Line int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used to trace applied entries.
func WithLogger(l zerolog.Logger) Option {
	return func(ld *Loader) { ld.log = l }
}

// Loader applies documents to one session. Types constructed by one document
// are visible to the next. It is not safe for concurrent use.
type Loader struct {
	s   *engine.Session
	m   *construct.Machine
	u   *object.Universe
	log zerolog.Logger
}

// New returns a Loader bound to s.
func New(s *engine.Session, opts ...Option) *Loader {
	ld := &Loader{s: s, m: s.Machine, u: s.Universe, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Session returns the session the loader applies documents to.
func (ld *Loader) Session() *engine.Session { return ld.s }

// LoadFile reads, parses and applies the document at path.
func (ld *Loader) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("phase=read path=%s: %w", path, err)
	}
	return ld.Load(path, src)
}

// Load parses src and applies it as the unit named unit.
func (ld *Loader) Load(unit string, src []byte) error {
	doc, err := Parse(src)
	if err != nil {
		return fmt.Errorf("%s: %w", unit, err)
	}
	return ld.Apply(unit, doc)
}

// Apply constructs the types of doc in order, then applies its late
// entries. The first failure stops the document.
func (ld *Loader) Apply(unit string, doc Document) error {
	a := &applier{Loader: ld, unit: unit}
	for i, td := range doc.Types {
		if err := a.applyType(fmt.Sprintf("types[%d]", i), td); err != nil {
			return err
		}
	}
	for i, late := range doc.Late {
		if err := a.applyLate(fmt.Sprintf("late[%d]", i), late); err != nil {
			return err
		}
	}
	return nil
}

// applier carries the unit of the document being applied.
type applier struct {
	*Loader
	unit string
}

func (a *applier) locate(path string, line int, err error) error {
	if err == nil {
		return nil
	}
	var located *Error
	if errors.As(err, &located) {
		return err
	}
	return &Error{Path: path, Unit: a.unit, Line: line, Err: err}
}

func (a *applier) lookup(name string) (*object.Type, error) {
	t, ok := a.u.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

func (a *applier) applyType(path string, td TypeDecl) error {
	var super *object.Type
	if td.Super != "" {
		t, err := a.lookup(td.Super)
		if err != nil {
			return a.locate(path, td.Line, a.m.Raise(err))
		}
		if !t.IsClass() {
			return a.locate(path, td.Line, a.m.Raise(fmt.Errorf("%w: %s", object.ErrNotClass, td.Super)))
		}
		super = t
	}

	site := scope.Known(a.unit, td.Line, td.Kind, scope.TopLevel)
	body := func(t *object.Type) error {
		return a.typeBody(path, td, t)
	}

	a.log.Debug().Str("unit", a.unit).Str("type", td.Name).Str("kind", td.Kind).Bool("dynamic", td.Dynamic).Msg("applying type")

	var err error
	switch {
	case td.Dynamic && td.Kind == KindModule:
		var t *object.Type
		if t, err = a.m.NewModule(site, body); err == nil {
			a.u.Bind(td.Name, t)
		}
	case td.Dynamic:
		if super == nil {
			super = a.u.Object()
		}
		var t *object.Type
		if t, err = a.m.NewClass(super, site, body); err == nil {
			a.u.Bind(td.Name, t)
		}
	case td.Kind == KindModule:
		_, err = a.m.DefineModule(td.Name, site, body)
	default:
		_, err = a.m.DefineClass(td.Name, super, site, body)
	}
	return a.locate(path, td.Line, err)
}

// typeBody runs inside the opening scope of t: it enables the component,
// records its abstract members and executes the body statements.
func (a *applier) typeBody(path string, td TypeDecl, t *object.Type) error {
	e := a.s.Engine()
	if td.Component {
		e.Registry().Enable(t)
	}
	if len(td.Abstract) > 0 || len(td.SingletonAbstract) > 0 {
		if !e.Declarable(t) {
			return a.locate(path, td.Line, fmt.Errorf("%w: %s", ErrNotComponent, td.Name))
		}
	}
	src := Source{Unit: a.unit, Line: td.Line}
	for _, name := range td.Abstract {
		a.m.Define(t, name, src)
		e.DeclareAbstract(t, name)
	}
	for _, name := range td.SingletonAbstract {
		a.m.Define(t.Meta(), name, src)
		e.DeclareAbstract(t.Meta(), name)
	}
	return a.exec(path+".body", t, td.Body, scope.TopLevel)
}

// exec runs statements with t as definee. Directives get placement p.
func (a *applier) exec(path string, t *object.Type, body []Statement, p scope.Placement) error {
	for i, st := range body {
		stPath := fmt.Sprintf("%s[%d]", path, i)
		if err := a.execStatement(stPath, t, st, p); err != nil {
			return a.locate(stPath, st.Line, err)
		}
	}
	return nil
}

func (a *applier) execStatement(path string, t *object.Type, st Statement, p scope.Placement) error {
	switch st.Op {
	case OpDef:
		a.m.Define(t, st.Arg, Source{Unit: a.unit, Line: st.Line})
	case OpDefSelf:
		a.m.Define(t.Meta(), st.Arg, Source{Unit: a.unit, Line: st.Line})
	case OpInclude, OpExtend, OpPrepend:
		return a.compose(t, st.Op, st.Arg, scope.Known(a.unit, st.Line, st.Op.String(), p))
	case OpBlock:
		return a.m.Block(func() error {
			return a.exec(path+".block", t, st.Body, scope.Nested)
		})
	case OpSingleton:
		return a.m.OpenSingleton(t, func(meta *object.Type) error {
			return a.exec(path+".singleton", meta, st.Body, scope.TopLevel)
		})
	case OpRaise:
		return a.m.Raise(fmt.Errorf("%w: %s", ErrRaised, st.Arg))
	default:
		return fmt.Errorf("%w: unknown operation %s", ErrInvalidDocument, st.Op)
	}
	return nil
}

func (a *applier) compose(t *object.Type, op Op, name string, site scope.Site) error {
	mod, err := a.lookup(name)
	if err != nil {
		return a.m.Raise(err)
	}
	switch op {
	case OpExtend:
		return a.m.Extend(t, mod, site)
	case OpPrepend:
		return a.m.Prepend(t, mod, site)
	}
	return a.m.Include(t, mod, site)
}

func (a *applier) applyLate(path string, late LateDecl) error {
	t, err := a.lookup(late.Target)
	if err != nil {
		return a.locate(path, late.Line, a.m.Raise(err))
	}
	a.log.Debug().Str("unit", a.unit).Str("target", late.Target).Str("op", late.Op.String()).Msg("applying late entry")

	if late.Op == OpBlock {
		err = a.m.Block(func() error {
			return a.exec(path+".eval", t, late.Body, scope.Nested)
		})
		return a.locate(path, late.Line, err)
	}
	site := scope.Known(a.unit, late.Line, late.Op.String(), scope.TopLevel)
	return a.locate(path, late.Line, a.compose(t, late.Op, late.Module, site))
}
