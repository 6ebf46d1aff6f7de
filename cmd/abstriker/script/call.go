package script

import (
	"errors"
	"fmt"
	"strings"

	"abstriker/cmd/abstriker/closure"
	"abstriker/cmd/abstriker/construct"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	sitter "github.com/smacker/go-tree-sitter"
)

func (in *Interpreter) evalCall(n *sitter.Node, fr *frame) (Value, error) {
	name := "call"
	if m := n.ChildByFieldName("method"); m != nil {
		name = in.text(m)
	}
	args, blk, err := in.evalArgs(n.ChildByFieldName("arguments"), fr)
	if err != nil {
		return nil, err
	}
	if b := n.ChildByFieldName("block"); b != nil {
		blk = in.makeProc(b, fr)
	}

	recvNode := n.ChildByFieldName("receiver")
	if recvNode == nil {
		return in.callSelf(n, name, args, blk, fr)
	}
	recv, err := in.eval(recvNode, fr)
	if err != nil {
		return nil, err
	}
	return in.send(n, recv, name, args, blk, fr)
}

func (in *Interpreter) evalArgs(list *sitter.Node, fr *frame) ([]Value, *Proc, error) {
	if list == nil {
		return nil, nil, nil
	}
	var (
		args []Value
		blk  *Proc
	)
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "comment", "pair":
			continue
		case "block_argument":
			if c.NamedChildCount() == 0 {
				continue
			}
			v, err := in.eval(c.NamedChild(0), fr)
			if err != nil {
				return nil, nil, err
			}
			p, ok := v.(*Proc)
			if !ok {
				return nil, nil, in.raise(c, "TypeError", ErrUnsupported, "wrong argument type %s (expected Proc)", className(v))
			}
			blk = p
			continue
		case "splat_argument":
			if c.NamedChildCount() == 0 {
				continue
			}
			v, err := in.eval(c.NamedChild(0), fr)
			if err != nil {
				return nil, nil, err
			}
			if arr, ok := v.(*Array); ok {
				args = append(args, arr.Elems...)
			} else {
				args = append(args, v)
			}
			continue
		}
		v, err := in.eval(c, fr)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, v)
	}
	return args, blk, nil
}

// callSite is the classifier key of a call: the line and text of its
// method name.
func (in *Interpreter) callSite(n *sitter.Node) scope.Site {
	if m := n.ChildByFieldName("method"); m != nil && n.Type() == "call" {
		return in.site(m, in.text(m))
	}
	return in.site(n, in.text(n))
}

// ---- Procs -----------------------------------------------------------------------

func (in *Interpreter) makeProc(b *sitter.Node, fr *frame) *Proc {
	p := &Proc{ctx: fr, unit: in.unit, src: in.src}
	if b == nil {
		return p
	}
	p.Params = in.params(b)
	p.Body = statements(b, "parameters")
	p.Line = scope.Line(b)
	return p
}

// invoke runs the body of p in fr with its parameters bound to args.
func (in *Interpreter) invoke(p *Proc, fr *frame, args []Value) (Value, error) {
	for i, name := range p.Params {
		var v Value = Nil{}
		if i < len(args) {
			v = args[i]
		}
		fr.env.vars[name] = v
	}
	unit, src := in.unit, in.src
	in.unit, in.src = p.unit, p.src
	defer func() { in.unit, in.src = unit, src }()
	return in.execAll(p.Body, fr)
}

// callProc runs p as a block of the current frame.
func (in *Interpreter) callProc(n *sitter.Node, p *Proc, args []Value) (Value, error) {
	if p == nil {
		return nil, in.raise(n, "LocalJumpError", ErrUnsupported, "no block given (yield)")
	}
	var out Value = Nil{}
	err := in.m.Block(func() error {
		v, err := in.invoke(p, p.ctx.block(), args)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, in.locate(n, err)
	}
	return out, nil
}

// ---- Dispatch --------------------------------------------------------------------

// callSelf dispatches a call without an explicit receiver.
func (in *Interpreter) callSelf(n *sitter.Node, name string, args []Value, blk *Proc, fr *frame) (Value, error) {
	switch name {
	case "raise", "fail":
		return nil, in.raiseCall(n, args)
	case "puts":
		if len(args) == 0 {
			fmt.Fprintln(in.out)
		}
		for _, a := range args {
			if arr, ok := a.(*Array); ok {
				for _, e := range arr.Elems {
					fmt.Fprintln(in.out, toS(e))
				}
				continue
			}
			fmt.Fprintln(in.out, toS(a))
		}
		return Nil{}, nil
	case "print":
		for _, a := range args {
			fmt.Fprint(in.out, toS(a))
		}
		return Nil{}, nil
	case "p":
		for _, a := range args {
			fmt.Fprintln(in.out, a.Inspect())
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return &Array{Elems: args}, nil
	case "proc", "lambda":
		if blk == nil {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "tried to create Proc object without a block")
		}
		blk.Lambda = name == "lambda"
		return blk, nil
	case "require", "require_relative", "using":
		return Bool(true), nil
	case "block_given?":
		return Bool(false), nil
	case "refine":
		return in.refine(n, args, blk)
	case "abstract", "abstract_singleton_method":
		t, ok := fr.selfType()
		if !ok {
			return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for main", name)
		}
		return in.declare(n, t, name, args)
	}

	self := fr.self
	if _, ok := self.(Main); ok {
		switch name {
		case "include", "extend", "prepend", "define_method", "private", "public", "alias_method":
			self = TypeRef{T: in.u.Object()}
		}
	}
	v, err := in.send(n, self, name, args, blk, fr)
	if errors.Is(err, ErrNoMethod) && len(args) == 0 && blk == nil && n.Type() == "identifier" {
		// the machine has already seen the NoMethodError; keep it as the
		// cause so that the failure is not published twice
		return nil, &Error{
			Class: "NameError",
			Msg:   fmt.Sprintf("undefined local variable or method '%s' for %s", name, self.Inspect()),
			Path:  in.unit,
			Line:  scope.Line(n),
			Err:   err,
		}
	}
	return v, err
}

// send dispatches name to recv.
func (in *Interpreter) send(n *sitter.Node, recv Value, name string, args []Value, blk *Proc, fr *frame) (Value, error) {
	switch name {
	case "send", "public_send", "__send__":
		if len(args) == 0 {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "no method name given")
		}
		target, ok := symbolName(args[0])
		if !ok {
			return nil, in.raise(n, "TypeError", ErrUnsupported, "%s is not a symbol nor a string", args[0].Inspect())
		}
		return in.send(n, recv, target, args[1:], blk, fr)
	case "tap":
		if _, err := in.callProc(n, blk, []Value{recv}); err != nil {
			return nil, err
		}
		return recv, nil
	case "then", "yield_self":
		return in.callProc(n, blk, []Value{recv})
	case "nil?":
		_, isNil := recv.(Nil)
		return Bool(isNil), nil
	case "to_s":
		if _, ok := recv.(Str); !ok {
			return Str(toS(recv)), nil
		}
	case "inspect":
		return Str(recv.Inspect()), nil
	case "class":
		return Builtin{Name: className(recv)}, nil
	case "freeze", "itself":
		return recv, nil
	case "frozen?":
		return Bool(true), nil
	}

	switch r := recv.(type) {
	case TypeRef:
		return in.sendType(n, r.T, name, args, blk, fr)
	case Builtin:
		return in.sendBuiltin(n, r, name, args, blk, fr)
	case *Proc:
		switch name {
		case "call", "()", "yield", "[]", "===":
			return in.callProc(n, r, args)
		case "to_proc":
			return r, nil
		case "lambda?":
			return Bool(r.Lambda), nil
		case "arity":
			return Int(len(r.Params)), nil
		}
	case *Array:
		return in.sendArray(n, r, name, args, blk)
	case Int:
		switch name {
		case "times":
			for i := Int(0); i < r; i++ {
				if _, err := in.callProc(n, blk, []Value{i}); err != nil {
					return nil, err
				}
			}
			return r, nil
		case "succ":
			return r + 1, nil
		case "zero?":
			return Bool(r == 0), nil
		}
	case Str:
		switch name {
		case "to_s":
			return r, nil
		case "to_sym":
			return Sym(r), nil
		case "upcase":
			return Str(strings.ToUpper(string(r))), nil
		case "downcase":
			return Str(strings.ToLower(string(r))), nil
		case "size", "length":
			return Int(len(r)), nil
		case "empty?":
			return Bool(r == ""), nil
		}
	case Sym:
		switch name {
		case "to_sym":
			return r, nil
		case "to_s", "name":
			return Str(r), nil
		}
	case *Exception:
		return in.sendException(n, r, name)
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s", name, describe(recv))
}

func describe(v Value) string {
	switch v := v.(type) {
	case Main:
		return "main:Object"
	case TypeRef:
		return v.T.Name() + ":" + className(v)
	}
	return "an instance of " + className(v)
}

func symbolName(v Value) (string, bool) {
	switch v := v.(type) {
	case Sym:
		return string(v), true
	case Str:
		return string(v), true
	}
	return "", false
}

func (in *Interpreter) sendType(n *sitter.Node, t *object.Type, name string, args []Value, blk *Proc, fr *frame) (Value, error) {
	switch name {
	case "include", "extend", "prepend":
		if len(args) == 0 {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "wrong number of arguments (given 0, expected 1+)")
		}
		// the last argument ends up deepest in the chain
		for i := len(args) - 1; i >= 0; i-- {
			ref, ok := args[i].(TypeRef)
			if !ok || !ref.T.IsModule() {
				return nil, in.raise(n, "TypeError", object.ErrNotModule, "wrong argument type %s (expected Module)", className(args[i]))
			}
			if err := in.compose(n, t, ref.T, name); err != nil {
				return nil, err
			}
		}
		return TypeRef{T: t}, nil
	case "class_eval", "module_eval", "class_exec", "module_exec", "instance_eval", "instance_exec":
		if blk == nil {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "%s with a string is not supported", name)
		}
		self := t
		if strings.HasPrefix(name, "instance_") {
			self = t.Meta()
		}
		blockArgs := args
		if strings.HasSuffix(name, "_eval") {
			blockArgs = []Value{TypeRef{T: t}}
		}
		return in.callProcAs(n, blk, blockArgs, TypeRef{T: t}, self)
	case "define_method":
		if len(args) == 0 {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "wrong number of arguments (given 0, expected 1..2)")
		}
		member, ok := symbolName(args[0])
		if !ok {
			return nil, in.raise(n, "TypeError", ErrUnsupported, "%s is not a symbol nor a string", args[0].Inspect())
		}
		if blk == nil && len(args) > 1 {
			blk, _ = args[1].(*Proc)
		}
		if blk == nil {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "tried to create Proc object without a block")
		}
		in.m.Define(t, member, MethodSource{Unit: in.unit, Line: scope.Line(n), Block: true})
		return Sym(member), nil
	case "attr_reader", "attr_writer", "attr_accessor":
		var defined []Value
		for _, a := range args {
			member, ok := symbolName(a)
			if !ok {
				return nil, in.raise(n, "TypeError", ErrUnsupported, "%s is not a symbol nor a string", a.Inspect())
			}
			if name != "attr_writer" {
				in.m.Define(t, member, MethodSource{Unit: in.unit, Line: scope.Line(n)})
				defined = append(defined, Sym(member))
			}
			if name != "attr_reader" {
				in.m.Define(t, member+"=", MethodSource{Unit: in.unit, Line: scope.Line(n)})
				defined = append(defined, Sym(member+"="))
			}
		}
		return &Array{Elems: defined}, nil
	case "alias_method":
		if len(args) != 2 {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "wrong number of arguments (given %d, expected 2)", len(args))
		}
		alias, ok1 := symbolName(args[0])
		old, ok2 := symbolName(args[1])
		if !ok1 || !ok2 {
			return nil, in.raise(n, "TypeError", ErrUnsupported, "alias names must be symbols or strings")
		}
		return in.aliasMethod(n, t, alias, old)
	case "private", "public", "protected", "module_function", "private_constant",
		"public_constant", "private_class_method", "public_class_method":
		switch len(args) {
		case 0:
			return Nil{}, nil
		case 1:
			return args[0], nil
		}
		return &Array{Elems: args}, nil
	case "abstract", "abstract_singleton_method":
		return in.declare(n, t, name, args)
	case "name":
		if !t.Named() {
			return Nil{}, nil
		}
		return Str(t.Name()), nil
	case "ancestors":
		chain := t.Ancestors()
		arr := &Array{Elems: make([]Value, len(chain))}
		for i, a := range chain {
			arr.Elems[i] = TypeRef{T: a}
		}
		return arr, nil
	case "superclass":
		if t.IsClass() && t.Super() != nil {
			return TypeRef{T: t.Super()}, nil
		}
		return Nil{}, nil
	case "singleton_class":
		return TypeRef{T: t.Meta()}, nil
	case "method_defined?", "instance_method":
		if len(args) == 0 {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "wrong number of arguments (given 0, expected 1)")
		}
		member, _ := symbolName(args[0])
		m, ok := t.Seal().Lookup(member)
		if name == "method_defined?" {
			return Bool(ok), nil
		}
		if !ok {
			return nil, in.raise(n, "NameError", ErrNoMethod, "undefined method '%s' for class '%s'", member, t.Name())
		}
		return TypeRef{T: m.Owner}, nil
	case "include?":
		if len(args) == 1 {
			if ref, ok := args[0].(TypeRef); ok && ref.T != t {
				return Bool(t.IsA(ref.T)), nil
			}
		}
		return Bool(false), nil
	case "new":
		return nil, in.raise(n, "NotImplementedError", ErrUnsupported, "instances are not supported (%s.new)", t.Name())
	case "enabled?", "disabled?":
		if t == in.marker {
			on := in.s.Engine().Enabled()
			return Bool(on == (name == "enabled?")), nil
		}
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s", name, describe(TypeRef{T: t}))
}

// callProcAs runs p as a block with self and definee replaced, the way
// class_eval and instance_eval run their block.
func (in *Interpreter) callProcAs(n *sitter.Node, p *Proc, args []Value, self Value, definee *object.Type) (Value, error) {
	var out Value = Nil{}
	err := in.m.Block(func() error {
		fr := p.ctx.block()
		fr.self, fr.definee = self, definee
		v, err := in.invoke(p, fr, args)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, in.locate(n, err)
	}
	return out, nil
}

// compose applies an include, prepend or extend directive. Extending with the marker
// module turns the type into a component.
func (in *Interpreter) compose(n *sitter.Node, t, mod *object.Type, kind string) error {
	site := in.callSite(n)
	var err error
	switch kind {
	case "extend":
		if mod == in.marker {
			in.s.Engine().Registry().Enable(t)
			in.log.Debug().Str("type", t.Name()).Msg("component enabled")
		}
		err = in.m.Extend(t, mod, site)
	case "prepend":
		err = in.m.Prepend(t, mod, site)
	default:
		err = in.m.Include(t, mod, site)
	}
	return in.locate(n, err)
}

// declare records abstract members of t, or of its singleton side for
// abstract_singleton_method. The declaration syntax is only available to
// components and their descendants.
func (in *Interpreter) declare(n *sitter.Node, t *object.Type, kind string, args []Value) (Value, error) {
	if !in.s.Engine().Declarable(t) {
		return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s", kind, describe(TypeRef{T: t}))
	}
	target := t
	if kind == "abstract_singleton_method" {
		target = t.Meta()
	}
	for _, a := range args {
		member, ok := symbolName(a)
		if !ok {
			return nil, in.raise(n, "TypeError", ErrUnsupported, "%s is not a symbol nor a string", a.Inspect())
		}
		in.s.Engine().DeclareAbstract(target, member)
	}
	switch len(args) {
	case 0:
		return Nil{}, nil
	case 1:
		return args[0], nil
	}
	return &Array{Elems: args}, nil
}

// refine runs the block against an anonymous module that is never attached
// to the refined type, so refinements do not count as implementations.
func (in *Interpreter) refine(n *sitter.Node, args []Value, blk *Proc) (Value, error) {
	if len(args) != 1 || blk == nil {
		return nil, in.raise(n, "ArgumentError", ErrUnsupported, "refine expects a class or module and a block")
	}
	if _, ok := args[0].(TypeRef); !ok {
		return nil, in.raise(n, "TypeError", ErrUnsupported, "wrong argument type %s (expected Class or Module)", className(args[0]))
	}
	refinement := in.u.NewModule()
	return in.callProcAs(n, blk, nil, TypeRef{T: refinement}, refinement)
}

func (in *Interpreter) sendBuiltin(n *sitter.Node, b Builtin, name string, args []Value, blk *Proc, fr *frame) (Value, error) {
	switch {
	case b.Name == "Class" && name == "new":
		super := in.u.Object()
		if len(args) > 0 {
			ref, ok := args[0].(TypeRef)
			if !ok || !ref.T.IsClass() {
				return nil, in.raise(n, "TypeError", object.ErrNotClass, "superclass must be a Class (%s given)", className(args[0]))
			}
			super = ref.T
		}
		t, err := in.m.NewClass(super, in.callSite(n), in.constructBody(blk))
		if err != nil {
			return nil, in.locate(n, err)
		}
		return TypeRef{T: t}, nil
	case b.Name == "Module" && name == "new":
		t, err := in.m.NewModule(in.callSite(n), in.constructBody(blk))
		if err != nil {
			return nil, in.locate(n, err)
		}
		return TypeRef{T: t}, nil
	case b.Name == "Proc" && name == "new":
		if blk == nil {
			return nil, in.raise(n, "ArgumentError", ErrUnsupported, "tried to create Proc object without a block")
		}
		return blk, nil
	case isException(b.Name) && (name == "new" || name == "exception"):
		msg := b.Name
		if len(args) > 0 {
			msg = toS(args[0])
		}
		return &Exception{Err: &Error{Class: b.Name, Msg: msg, Path: in.unit, Line: scope.Line(n), Err: ErrRaised}}, nil
	case name == "name" || name == "to_s":
		return Str(b.Name), nil
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s:Class", name, b.Name)
}

// constructBody turns the block of Class.new or Module.new into the scope
// body of the new type. The block sees its surrounding locals.
func (in *Interpreter) constructBody(blk *Proc) construct.Body {
	if blk == nil {
		return nil
	}
	return func(t *object.Type) error {
		_, err := in.invoke(blk, blk.ctx.with(t), []Value{TypeRef{T: t}})
		return err
	}
}

func (in *Interpreter) sendArray(n *sitter.Node, arr *Array, name string, args []Value, blk *Proc) (Value, error) {
	switch name {
	case "each", "each_with_index":
		for i, e := range arr.Elems {
			blockArgs := []Value{e}
			if name == "each_with_index" {
				blockArgs = append(blockArgs, Int(i))
			}
			if _, err := in.callProc(n, blk, blockArgs); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case "map", "collect":
		out := &Array{Elems: make([]Value, 0, len(arr.Elems))}
		for _, e := range arr.Elems {
			v, err := in.callProc(n, blk, []Value{e})
			if err != nil {
				return nil, err
			}
			out.Elems = append(out.Elems, v)
		}
		return out, nil
	case "size", "length", "count":
		return Int(len(arr.Elems)), nil
	case "empty?":
		return Bool(len(arr.Elems) == 0), nil
	case "first", "last":
		if len(arr.Elems) == 0 {
			return Nil{}, nil
		}
		if name == "first" {
			return arr.Elems[0], nil
		}
		return arr.Elems[len(arr.Elems)-1], nil
	case "include?":
		for _, e := range arr.Elems {
			if len(args) == 1 && equal(e, args[0]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case "join":
		sep := ""
		if len(args) > 0 {
			sep = toS(args[0])
		}
		parts := make([]string, len(arr.Elems))
		for i, e := range arr.Elems {
			parts[i] = toS(e)
		}
		return Str(strings.Join(parts, sep)), nil
	case "push":
		arr.Elems = append(arr.Elems, args...)
		return arr, nil
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for an instance of Array", name)
}

func (in *Interpreter) sendException(n *sitter.Node, e *Exception, name string) (Value, error) {
	var v *closure.Violation
	isViolation := errors.As(e.Err, &v)
	switch name {
	case "message", "to_s":
		return Str(e.Err.Msg), nil
	case "class":
		return Builtin{Name: e.Err.Class}, nil
	case "full_message":
		return Str(e.Err.Error()), nil
	case "subclass":
		if isViolation {
			return TypeRef{T: v.Type}, nil
		}
	case "abstract_method":
		if isViolation {
			return Sym(v.Member), nil
		}
	case "component":
		if isViolation {
			return TypeRef{T: v.Component}, nil
		}
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for an instance of %s", name, e.Err.Class)
}

// raiseCall implements raise with no argument, a message, an exception
// class and message, or a rescued exception.
func (in *Interpreter) raiseCall(n *sitter.Node, args []Value) error {
	if len(args) == 0 {
		return in.raise(n, "RuntimeError", ErrRaised, "unhandled exception")
	}
	msgOr := func(def string) string {
		if len(args) > 1 {
			return toS(args[1])
		}
		return def
	}
	switch a := args[0].(type) {
	case Str:
		return in.raise(n, "RuntimeError", ErrRaised, "%s", string(a))
	case Builtin:
		return in.raise(n, a.Name, ErrRaised, "%s", msgOr(a.Name))
	case TypeRef:
		return in.raise(n, a.T.Name(), ErrRaised, "%s", msgOr(a.T.Name()))
	case *Exception:
		return in.m.Raise(a.Err)
	}
	return in.raise(n, "TypeError", ErrRaised, "exception class/object expected")
}
