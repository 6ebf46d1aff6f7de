// Package script executes a Ruby subset of type definitions through the
// construction machine of an engine session.
//
// Method bodies are recorded, never run. Everything else a definition file
// does while it is loaded (class and module scopes, include and extend,
// Class.new, class_eval, procs and iterators, raise and rescue) is executed
// so that the engine observes the same construction steps the program would
// perform.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"

	"abstriker/cmd/abstriker/construct"
	"abstriker/cmd/abstriker/engine"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
)

// MarkerName is the module whose extension turns a type into a component.
const MarkerName = "Abstriker"

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets where puts and p write. Output is discarded by default.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		if w != nil {
			in.out = w
		}
	}
}

// WithLogger sets the logger used to trace statements.
func WithLogger(l zerolog.Logger) Option {
	return func(in *Interpreter) { in.log = l }
}

// Interpreter runs scripts against one session. Locals and types defined by
// one Run are visible to the next. It is not safe for concurrent use.
type Interpreter struct {
	s      *engine.Session
	m      *construct.Machine
	u      *object.Universe
	out    io.Writer
	log    zerolog.Logger
	top    *env
	marker *object.Type

	consts map[string]Value
	trees  []*sitter.Tree

	ctx  context.Context
	unit string
	src  []byte
}

// New returns an Interpreter bound to s. The marker module is bound in the
// session universe on first use.
func New(s *engine.Session, opts ...Option) *Interpreter {
	in := &Interpreter{
		s:      s,
		m:      s.Machine,
		u:      s.Universe,
		out:    io.Discard,
		log:    zerolog.Nop(),
		top:    newEnv(nil),
		consts: make(map[string]Value),
	}
	for _, opt := range opts {
		opt(in)
	}
	if t, ok := in.u.Lookup(MarkerName); ok && t.IsModule() {
		in.marker = t
	} else {
		in.marker = in.u.NewModule()
		in.u.Bind(MarkerName, in.marker)
	}
	return in
}

// Session returns the session the interpreter runs in.
func (in *Interpreter) Session() *engine.Session { return in.s }

// Close releases the syntax trees of every unit run so far. Procs created by
// those units must not be called afterwards.
func (in *Interpreter) Close() {
	for _, t := range in.trees {
		t.Close()
	}
	in.trees = nil
}

// Run parses src and executes it as the source unit named unit. The first
// exception that is not rescued stops the run and is returned as an *Error.
func (in *Interpreter) Run(ctx context.Context, unit string, src []byte) error {
	in.s.Engine().Classifier().Provide(unit, src)

	tree, err := scope.Parse(ctx, src)
	if err != nil {
		return &Error{Class: "SyntaxError", Msg: err.Error(), Path: unit, Err: err}
	}
	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		tree.Close()
		return &Error{
			Class: "SyntaxError",
			Msg:   fmt.Sprintf("syntax error near %q", snippet(bad.Content(src))),
			Path:  unit,
			Line:  scope.Line(bad),
			Err:   ErrSyntax,
		}
	}
	in.trees = append(in.trees, tree)
	in.ctx, in.unit, in.src = ctx, unit, src

	fr := &frame{self: Main{}, definee: in.u.Object(), env: in.top}
	_, err = in.execAll(statements(root), fr)
	if err != nil {
		in.log.Debug().Err(err).Str("unit", unit).Msg("script stopped")
	}
	return err
}

// Complete reports whether src parses without errors. Interactive callers
// use it to decide whether to keep reading input.
func Complete(ctx context.Context, src []byte) bool {
	tree, err := scope.Parse(ctx, src)
	if err != nil {
		return false
	}
	defer tree.Close()
	return firstError(tree.RootNode()) == nil
}

// ---- Evaluation context --------------------------------------------------------

type env struct {
	vars   map[string]Value
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: make(map[string]Value), parent: parent}
}

func (e *env) get(name string) (Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// set assigns an existing variable of an enclosing block or defines a new
// one in e.
func (e *env) set(name string, v Value) {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return
		}
	}
	e.vars[name] = v
}

// frame is what a statement executes against: self, the type receiving def,
// the lexical nesting used for constants and the local variables.
type frame struct {
	self    Value
	definee *object.Type
	cref    []*object.Type
	env     *env
}

// block returns the frame of a block created in fr.
func (fr *frame) block() *frame {
	return &frame{self: fr.self, definee: fr.definee, cref: fr.cref, env: newEnv(fr.env)}
}

// scope returns the frame of an opening scope of t. Scope bodies do not see
// the locals of their surroundings.
func (fr *frame) scope(t *object.Type) *frame {
	cref := append(append([]*object.Type(nil), fr.cref...), t)
	return &frame{self: TypeRef{T: t}, definee: t, cref: cref, env: newEnv(nil)}
}

// with returns a block frame whose self and definee are t, as class_eval and
// Class.new blocks run.
func (fr *frame) with(t *object.Type) *frame {
	b := fr.block()
	b.self, b.definee = TypeRef{T: t}, t
	return b
}

// selfType returns self when it is a type.
func (fr *frame) selfType() (*object.Type, bool) {
	if ref, ok := fr.self.(TypeRef); ok {
		return ref.T, true
	}
	return nil, false
}

// ---- Errors --------------------------------------------------------------------

// raise starts an exception of class at n and publishes it as a failure.
func (in *Interpreter) raise(n *sitter.Node, class string, cause error, format string, args ...any) error {
	e := &Error{
		Class: class,
		Msg:   fmt.Sprintf(format, args...),
		Path:  in.unit,
		Err:   cause,
	}
	if n != nil {
		e.Line = scope.Line(n)
	}
	return in.m.Raise(e)
}

// locate attaches the position of n to an error coming out of the machine.
// Errors already located keep their original position.
func (in *Interpreter) locate(n *sitter.Node, err error) error {
	if err == nil {
		return nil
	}
	var located *Error
	if errors.As(err, &located) {
		return err
	}
	return &Error{
		Class: classOf(err),
		Msg:   err.Error(),
		Path:  in.unit,
		Line:  scope.Line(n),
		Err:   err,
	}
}

func (in *Interpreter) site(n *sitter.Node, keyword string) scope.Site {
	return scope.At(in.unit, scope.Line(n), keyword)
}

func (in *Interpreter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(in.src)
}

// ---- Tree helpers --------------------------------------------------------------

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			if bad := firstError(c); bad != nil {
				return bad
			}
		}
	}
	return n
}

func snippet(s string) string {
	const limit = 24
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// statements returns the statements of a scope, block or branch node,
// skipping the named fields listed and flattening body wrappers. It accepts
// both grammar shapes: statements under a body field or directly under n.
func statements(n *sitter.Node, skip ...string) []*sitter.Node {
	if n == nil {
		return nil
	}
	var skipped []*sitter.Node
	for _, f := range skip {
		if c := n.ChildByFieldName(f); c != nil {
			skipped = append(skipped, c)
		}
	}
	var out []*sitter.Node
outer:
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		for _, s := range skipped {
			if sameNode(c, s) {
				continue outer
			}
		}
		switch c.Type() {
		case "comment", "empty_statement", "block_parameters", "lambda_parameters",
			"method_parameters", "parameters", "superclass", "heredoc_body":
			continue
		case "body_statement", "block_body", "then":
			out = append(out, statements(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// params returns the plain parameter names of a block or lambda.
func (in *Interpreter) params(n *sitter.Node) []string {
	p := n.ChildByFieldName("parameters")
	if p == nil {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c != nil && (c.Type() == "block_parameters" || c.Type() == "lambda_parameters") {
				p = c
				break
			}
		}
	}
	if p == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(p.NamedChildCount()); i++ {
		c := p.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "identifier":
			names = append(names, in.text(c))
		case "optional_parameter", "splat_parameter", "block_parameter", "keyword_parameter":
			if id := c.ChildByFieldName("name"); id != nil {
				names = append(names, in.text(id))
			}
		}
	}
	return names
}
