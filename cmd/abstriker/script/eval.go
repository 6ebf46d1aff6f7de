package script

import (
	"errors"
	"strconv"
	"strings"

	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	sitter "github.com/smacker/go-tree-sitter"
)

// execAll runs statements in order and returns the value of the last one.
// A statement list carrying rescue or ensure clauses runs protected.
func (in *Interpreter) execAll(nodes []*sitter.Node, fr *frame) (Value, error) {
	for _, n := range nodes {
		switch n.Type() {
		case "rescue", "ensure":
			return in.execProtected(nodes, fr)
		}
	}
	var last Value = Nil{}
	for _, n := range nodes {
		if in.ctx != nil {
			if err := in.ctx.Err(); err != nil {
				return nil, in.m.Raise(err)
			}
		}
		v, err := in.eval(n, fr)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (in *Interpreter) eval(n *sitter.Node, fr *frame) (Value, error) {
	in.log.Trace().Str("unit", in.unit).Int("line", scope.Line(n)).Str("node", n.Type()).Msg("eval")

	switch n.Type() {
	case "class":
		return in.evalClass(n, fr)
	case "module":
		return in.evalModule(n, fr)
	case "singleton_class":
		return in.evalSingletonClass(n, fr)
	case "method":
		return in.evalDef(n, fr)
	case "singleton_method":
		return in.evalSingletonDef(n, fr)
	case "call":
		return in.evalCall(n, fr)
	case "identifier":
		name := in.text(n)
		if v, ok := fr.env.get(name); ok {
			return v, nil
		}
		return in.callSelf(n, name, nil, nil, fr)
	case "constant":
		return in.lookupConst(n, in.text(n), fr)
	case "scope_resolution":
		return in.evalScoped(n, fr)
	case "self":
		return fr.self, nil
	case "nil":
		return Nil{}, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "integer":
		i, err := strconv.ParseInt(strings.ReplaceAll(in.text(n), "_", ""), 0, 64)
		if err != nil {
			return nil, in.raise(n, "SyntaxError", ErrSyntax, "invalid integer %s", in.text(n))
		}
		return Int(i), nil
	case "string":
		s, err := in.evalString(n, fr)
		return Str(s), err
	case "simple_symbol", "symbol", "hash_key_symbol":
		return Sym(strings.TrimPrefix(in.text(n), ":")), nil
	case "delimited_symbol":
		s, err := in.evalString(n, fr)
		return Sym(s), err
	case "array":
		return in.evalArray(n, fr)
	case "assignment":
		return in.evalAssignment(n, fr)
	case "if", "unless", "elsif":
		return in.evalIf(n, fr)
	case "if_modifier", "unless_modifier":
		cond, err := in.eval(n.ChildByFieldName("condition"), fr)
		if err != nil {
			return nil, err
		}
		if truthy(cond) == (n.Type() == "if_modifier") {
			return in.eval(n.ChildByFieldName("body"), fr)
		}
		return Nil{}, nil
	case "ternary":
		cond, err := in.eval(n.ChildByFieldName("condition"), fr)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return in.eval(n.ChildByFieldName("consequence"), fr)
		}
		return in.eval(n.ChildByFieldName("alternative"), fr)
	case "binary":
		return in.evalBinary(n, fr)
	case "unary":
		return in.evalUnary(n, fr)
	case "parenthesized_statements":
		return in.execAll(statements(n), fr)
	case "begin":
		return in.execProtected(statements(n), fr)
	case "lambda":
		body := n.ChildByFieldName("body")
		p := in.makeProc(body, fr)
		p.Lambda = true
		if params := in.params(n); params != nil {
			p.Params = params
		}
		return p, nil
	case "alias":
		return in.evalAlias(n, fr)
	}
	return nil, in.raise(n, "NotImplementedError", ErrUnsupported, "%s is not supported", n.Type())
}

// ---- Scopes --------------------------------------------------------------------

func (in *Interpreter) evalClass(n *sitter.Node, fr *frame) (Value, error) {
	name, err := in.constPath(n.ChildByFieldName("name"), fr)
	if err != nil {
		return nil, err
	}
	var super *object.Type
	if sc := n.ChildByFieldName("superclass"); sc != nil && sc.NamedChildCount() > 0 {
		v, err := in.eval(sc.NamedChild(0), fr)
		if err != nil {
			return nil, err
		}
		ref, ok := v.(TypeRef)
		if !ok || !ref.T.IsClass() {
			return nil, in.raise(sc, "TypeError", object.ErrNotClass, "superclass must be a Class (%s given)", className(v))
		}
		super = ref.T
	}

	var last Value = Nil{}
	_, err = in.m.DefineClass(name, super, in.site(n, "class"), func(t *object.Type) error {
		v, err := in.execAll(statements(n, "name", "superclass"), fr.scope(t))
		last = v
		return err
	})
	if err != nil {
		return nil, in.locate(n, err)
	}
	return last, nil
}

func (in *Interpreter) evalModule(n *sitter.Node, fr *frame) (Value, error) {
	name, err := in.constPath(n.ChildByFieldName("name"), fr)
	if err != nil {
		return nil, err
	}
	var last Value = Nil{}
	_, err = in.m.DefineModule(name, in.site(n, "module"), func(t *object.Type) error {
		v, err := in.execAll(statements(n, "name"), fr.scope(t))
		last = v
		return err
	})
	if err != nil {
		return nil, in.locate(n, err)
	}
	return last, nil
}

func (in *Interpreter) evalSingletonClass(n *sitter.Node, fr *frame) (Value, error) {
	v, err := in.eval(n.ChildByFieldName("value"), fr)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(TypeRef)
	if !ok {
		return nil, in.raise(n, "TypeError", ErrUnsupported, "can't define singleton of %s", className(v))
	}
	var last Value = Nil{}
	err = in.m.OpenSingleton(ref.T, func(meta *object.Type) error {
		v, err := in.execAll(statements(n, "value"), fr.scope(meta))
		last = v
		return err
	})
	if err != nil {
		return nil, in.locate(n, err)
	}
	return last, nil
}

// constPath returns the constant name a class or module statement binds.
// Names nested in a named type are qualified with it.
func (in *Interpreter) constPath(n *sitter.Node, fr *frame) (string, error) {
	if n == nil {
		return "", in.raise(n, "SyntaxError", ErrSyntax, "missing constant name")
	}
	if n.Type() == "scope_resolution" {
		name := in.text(n.ChildByFieldName("name"))
		sc := n.ChildByFieldName("scope")
		if sc == nil {
			return name, nil
		}
		v, err := in.eval(sc, fr)
		if err != nil {
			return "", err
		}
		ref, ok := v.(TypeRef)
		if !ok {
			return "", in.raise(n, "TypeError", object.ErrConstantKind, "%s is not a class/module", sc.Content(in.src))
		}
		return ref.T.Name() + "::" + name, nil
	}
	return in.qualify(in.text(n), fr), nil
}

func (in *Interpreter) qualify(name string, fr *frame) string {
	for i := len(fr.cref) - 1; i >= 0; i-- {
		if c := fr.cref[i]; !c.IsSingleton() && c.Named() {
			return c.Name() + "::" + name
		}
	}
	return name
}

// lookupConst resolves name lexically, then globally, then among the
// built-in constants.
func (in *Interpreter) lookupConst(n *sitter.Node, name string, fr *frame) (Value, error) {
	for i := len(fr.cref) - 1; i >= 0; i-- {
		c := fr.cref[i]
		if c.IsSingleton() || !c.Named() {
			continue
		}
		if v, ok := in.constant(c.Name() + "::" + name); ok {
			return v, nil
		}
	}
	if v, ok := in.constant(name); ok {
		return v, nil
	}
	switch name {
	case "Class", "Module", "Proc", "Kernel":
		return Builtin{Name: name}, nil
	}
	if isException(name) {
		return Builtin{Name: name}, nil
	}
	return nil, in.raise(n, "NameError", object.ErrUnknownConstant, "uninitialized constant %s", name)
}

func (in *Interpreter) constant(name string) (Value, bool) {
	if t, ok := in.u.Lookup(name); ok {
		return TypeRef{T: t}, true
	}
	v, ok := in.consts[name]
	return v, ok
}

func (in *Interpreter) evalScoped(n *sitter.Node, fr *frame) (Value, error) {
	name := in.text(n.ChildByFieldName("name"))
	sc := n.ChildByFieldName("scope")
	if sc == nil {
		if v, ok := in.constant(name); ok {
			return v, nil
		}
		return in.lookupConst(n, name, &frame{})
	}
	if in.text(sc) == MarkerName && isException(MarkerName+"::"+name) {
		return Builtin{Name: MarkerName + "::" + name}, nil
	}
	v, err := in.eval(sc, fr)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(TypeRef)
	if !ok {
		return nil, in.raise(n, "TypeError", object.ErrConstantKind, "%s is not a class/module", in.text(sc))
	}
	if c, ok := in.constant(ref.T.Name() + "::" + name); ok {
		return c, nil
	}
	return nil, in.raise(n, "NameError", object.ErrUnknownConstant, "uninitialized constant %s::%s", ref.T.Name(), name)
}

// ---- Members -------------------------------------------------------------------

func (in *Interpreter) evalDef(n *sitter.Node, fr *frame) (Value, error) {
	name := in.text(n.ChildByFieldName("name"))
	in.m.Define(fr.definee, name, MethodSource{Unit: in.unit, Line: scope.Line(n)})
	return Sym(name), nil
}

func (in *Interpreter) evalSingletonDef(n *sitter.Node, fr *frame) (Value, error) {
	v, err := in.eval(n.ChildByFieldName("object"), fr)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(TypeRef)
	if !ok {
		return nil, in.raise(n, "TypeError", ErrUnsupported, "can't define singleton method for %s", className(v))
	}
	name := in.text(n.ChildByFieldName("name"))
	in.m.Define(ref.T.Meta(), name, MethodSource{Unit: in.unit, Line: scope.Line(n)})
	return Sym(name), nil
}

func (in *Interpreter) evalAlias(n *sitter.Node, fr *frame) (Value, error) {
	alias := strings.TrimPrefix(in.text(n.ChildByFieldName("alias")), ":")
	name := strings.TrimPrefix(in.text(n.ChildByFieldName("name")), ":")
	if alias == "" || name == "" {
		// older grammars put both names in the children
		if n.NamedChildCount() < 2 {
			return nil, in.raise(n, "SyntaxError", ErrSyntax, "malformed alias")
		}
		name = strings.TrimPrefix(in.text(n.NamedChild(0)), ":")
		alias = strings.TrimPrefix(in.text(n.NamedChild(1)), ":")
	}
	return in.aliasMethod(n, fr.definee, name, alias)
}

func (in *Interpreter) aliasMethod(n *sitter.Node, t *object.Type, name, old string) (Value, error) {
	if _, ok := t.Seal().Lookup(old); !ok {
		return nil, in.raise(n, "NameError", ErrNoMethod, "undefined method '%s' for class '%s'", old, t.Name())
	}
	in.m.Define(t, name, MethodSource{Unit: in.unit, Line: scope.Line(n)})
	return Sym(name), nil
}

// ---- Expressions ---------------------------------------------------------------

func (in *Interpreter) evalString(n *sitter.Node, fr *frame) (string, error) {
	var b strings.Builder
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "string_content":
			b.WriteString(in.text(c))
		case "escape_sequence":
			b.WriteString(unescape(in.text(c)))
		case "interpolation":
			v, err := in.execAll(statements(c), fr)
			if err != nil {
				return "", err
			}
			b.WriteString(toS(v))
		}
	}
	return b.String(), nil
}

func unescape(seq string) string {
	switch seq {
	case `\n`:
		return "\n"
	case `\t`:
		return "\t"
	case `\\`:
		return `\`
	case `\"`:
		return `"`
	case `\'`:
		return "'"
	}
	return strings.TrimPrefix(seq, `\`)
}

func (in *Interpreter) evalArray(n *sitter.Node, fr *frame) (Value, error) {
	arr := &Array{}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		v, err := in.eval(c, fr)
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, v)
	}
	return arr, nil
}

func (in *Interpreter) evalAssignment(n *sitter.Node, fr *frame) (Value, error) {
	left := n.ChildByFieldName("left")
	v, err := in.eval(n.ChildByFieldName("right"), fr)
	if err != nil {
		return nil, err
	}
	switch left.Type() {
	case "identifier":
		fr.env.set(in.text(left), v)
	case "constant", "scope_resolution":
		name, err := in.constPath(left, fr)
		if err != nil {
			return nil, err
		}
		if ref, ok := v.(TypeRef); ok {
			in.u.Bind(name, ref.T)
		} else {
			in.consts[name] = v
		}
	case "call":
		return in.evalAttrAssign(left, v, fr)
	default:
		return nil, in.raise(n, "NotImplementedError", ErrUnsupported, "assignment to %s is not supported", left.Type())
	}
	return v, nil
}

// evalAttrAssign handles receiver.attr = value. Only the engine toggle is
// writable.
func (in *Interpreter) evalAttrAssign(left *sitter.Node, v Value, fr *frame) (Value, error) {
	recv, err := in.eval(left.ChildByFieldName("receiver"), fr)
	if err != nil {
		return nil, err
	}
	attr := in.text(left.ChildByFieldName("method"))
	if ref, ok := recv.(TypeRef); ok && ref.T == in.marker && attr == "disable" {
		in.s.Engine().SetEnabled(!truthy(v))
		return v, nil
	}
	return nil, in.raise(left, "NoMethodError", ErrNoMethod, "undefined method '%s=' for %s", attr, recv.Inspect())
}

func (in *Interpreter) evalIf(n *sitter.Node, fr *frame) (Value, error) {
	cond, err := in.eval(n.ChildByFieldName("condition"), fr)
	if err != nil {
		return nil, err
	}
	if truthy(cond) == (n.Type() != "unless") {
		return in.execAll(statements(n.ChildByFieldName("consequence")), fr)
	}
	alt := n.ChildByFieldName("alternative")
	switch {
	case alt == nil:
		return Nil{}, nil
	case alt.Type() == "elsif":
		return in.evalIf(alt, fr)
	}
	return in.execAll(statements(alt), fr)
}

func (in *Interpreter) evalBinary(n *sitter.Node, fr *frame) (Value, error) {
	op := in.text(n.ChildByFieldName("operator"))
	left, err := in.eval(n.ChildByFieldName("left"), fr)
	if err != nil {
		return nil, err
	}
	switch op {
	case "&&", "and":
		if !truthy(left) {
			return left, nil
		}
		return in.eval(n.ChildByFieldName("right"), fr)
	case "||", "or":
		if truthy(left) {
			return left, nil
		}
		return in.eval(n.ChildByFieldName("right"), fr)
	}
	right, err := in.eval(n.ChildByFieldName("right"), fr)
	if err != nil {
		return nil, err
	}
	switch op {
	case "==":
		return Bool(equal(left, right)), nil
	case "!=":
		return Bool(!equal(left, right)), nil
	}

	switch l := left.(type) {
	case Int:
		r, ok := right.(Int)
		if !ok {
			break
		}
		switch op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "<":
			return Bool(l < r), nil
		case ">":
			return Bool(l > r), nil
		case "<=":
			return Bool(l <= r), nil
		case ">=":
			return Bool(l >= r), nil
		}
	case Str:
		if r, ok := right.(Str); ok && op == "+" {
			return l + r, nil
		}
		if r, ok := right.(Int); ok && op == "*" && r >= 0 {
			return Str(strings.Repeat(string(l), int(r))), nil
		}
	case *Array:
		if r, ok := right.(*Array); ok && op == "+" {
			return &Array{Elems: append(append([]Value(nil), l.Elems...), r.Elems...)}, nil
		}
		if op == "<<" {
			l.Elems = append(l.Elems, right)
			return l, nil
		}
	case TypeRef:
		// Sub < Base
		if r, ok := right.(TypeRef); ok && (op == "<" || op == "<=") {
			if l.T == r.T {
				return Bool(op == "<="), nil
			}
			return Bool(l.T.IsA(r.T)), nil
		}
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s", op, className(left))
}

func (in *Interpreter) evalUnary(n *sitter.Node, fr *frame) (Value, error) {
	op := in.text(n.ChildByFieldName("operator"))
	v, err := in.eval(n.ChildByFieldName("operand"), fr)
	if err != nil {
		return nil, err
	}
	switch op {
	case "!", "not":
		return Bool(!truthy(v)), nil
	case "-":
		if i, ok := v.(Int); ok {
			return -i, nil
		}
	}
	return nil, in.raise(n, "NoMethodError", ErrNoMethod, "undefined method '%s' for %s", op, className(v))
}

// ---- Exceptions ----------------------------------------------------------------

// execProtected runs a statement list that may carry rescue, else and
// ensure clauses.
func (in *Interpreter) execProtected(nodes []*sitter.Node, fr *frame) (Value, error) {
	var body, rescues []*sitter.Node
	var elseNode, ensureNode *sitter.Node
	for _, n := range nodes {
		switch n.Type() {
		case "rescue":
			rescues = append(rescues, n)
		case "else":
			elseNode = n
		case "ensure":
			ensureNode = n
		default:
			body = append(body, n)
		}
	}

	v, err := in.execAll(body, fr)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			for _, r := range rescues {
				if !in.rescues(r, se) {
					continue
				}
				if name := in.rescueVariable(r); name != "" {
					fr.env.set(name, &Exception{Err: se})
				}
				v, err = in.execAll(rescueBody(r), fr)
				break
			}
		}
	} else if elseNode != nil {
		v, err = in.execAll(statements(elseNode), fr)
	}

	if ensureNode != nil {
		if _, eerr := in.execAll(statements(ensureNode), fr); eerr != nil {
			return nil, eerr
		}
	}
	return v, err
}

func (in *Interpreter) rescues(r *sitter.Node, se *Error) bool {
	list := r.ChildByFieldName("exceptions")
	if list == nil {
		return kindOf(se.Class, "StandardError")
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		if c == nil {
			continue
		}
		if kindOf(se.Class, strings.TrimPrefix(in.text(c), "::")) {
			return true
		}
	}
	return false
}

func (in *Interpreter) rescueVariable(r *sitter.Node) string {
	v := r.ChildByFieldName("variable")
	if v == nil {
		return ""
	}
	if v.NamedChildCount() > 0 {
		return in.text(v.NamedChild(0))
	}
	return strings.TrimSpace(strings.TrimPrefix(in.text(v), "=>"))
}

func rescueBody(r *sitter.Node) []*sitter.Node {
	if body := r.ChildByFieldName("body"); body != nil {
		return statements(body)
	}
	return statements(r, "exceptions", "variable")
}
