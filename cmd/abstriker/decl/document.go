// Package decl loads declarative YAML descriptions of types into an engine
// session.
//
// A document lists types in construction order. Each type body is a list of
// statements executed inside the type's opening scope; the placement of a
// composition directive is a structural fact of the document, so the scope
// classifier is never consulted:
//
//	types:
//	  - name: Shape
//	    component: true
//	    abstract: [area]
//	  - name: Circle
//	    super: Shape
//	    body:
//	      - def: radius
//	      - block:
//	          - def: area
//	late:
//	  - target: Circle
//	    include: Printable
package decl

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type kinds.
const (
	KindClass  = "class"
	KindModule = "module"
)

// Op is the operation of a body statement.
type Op int

const (
	OpDef       Op = iota // define an instance member
	OpDefSelf             // define a singleton member
	OpInclude             // include a module
	OpExtend              // extend with a module
	OpPrepend             // prepend a module
	OpBlock               // run statements as a block
	OpSingleton           // run statements in the singleton scope
	OpRaise               // raise an unrelated failure
)

var opKeys = map[string]Op{
	"def":       OpDef,
	"def_self":  OpDefSelf,
	"include":   OpInclude,
	"extend":    OpExtend,
	"prepend":   OpPrepend,
	"block":     OpBlock,
	"singleton": OpSingleton,
	"raise":     OpRaise,
}

func (o Op) String() string {
	for k, v := range opKeys {
		if v == o {
			return k
		}
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// nests reports whether the statement carries a statement list.
func (o Op) nests() bool { return o == OpBlock || o == OpSingleton }

// Statement is one entry of a type body or of a late eval list. Arg is the
// member name, module name or message; Body holds the statements of block
// and singleton entries.
type Statement struct {
	Op   Op
	Arg  string
	Body []Statement
	Line int
}

// TypeDecl describes one class or module. A Dynamic type is constructed
// anonymously and bound to Name once its construction succeeds.
type TypeDecl struct {
	Name              string
	Kind              string
	Super             string
	Component         bool
	Dynamic           bool
	Abstract          []string
	SingletonAbstract []string
	Body              []Statement
	Line              int
}

// LateDecl is a composition applied to an already constructed type: a
// top-level include, prepend or extend, or an eval list run as a block with the
// target as definee.
type LateDecl struct {
	Target string
	Op     Op
	Module string
	Body   []Statement
	Line   int
}

// Document is the Go-level representation of a parsed declaration file.
//
// Two YAML forms are supported:
//   - Mapping form: a mapping with "types" and "late" keys.
//   - Shorthand form: a bare sequence, interpreted as types only.
type Document struct {
	Types []TypeDecl
	Late  []LateDecl
}

// ---- Internal YAML parsing structs ----------------------------------------
//
// Entries are kept as yaml.Node so that every declaration keeps its line.
// Non-pointer yaml.Node fields are used because yaml.v3 leaves *yaml.Node
// struct fields with Kind 0.

type yamlDocument struct {
	Types []yaml.Node `yaml:"types,omitempty"`
	Late  []yaml.Node `yaml:"late,omitempty"`
}

type yamlType struct {
	Name              string    `yaml:"name"`
	Kind              string    `yaml:"kind,omitempty"`
	Super             string    `yaml:"super,omitempty"`
	Component         bool      `yaml:"component,omitempty"`
	Dynamic           bool      `yaml:"dynamic,omitempty"`
	Abstract          []string  `yaml:"abstract,omitempty"`
	SingletonAbstract []string  `yaml:"singleton_abstract,omitempty"`
	Body              yaml.Node `yaml:"body,omitempty"`
}

type yamlLate struct {
	Target  string    `yaml:"target"`
	Include string    `yaml:"include,omitempty"`
	Extend  string    `yaml:"extend,omitempty"`
	Prepend string    `yaml:"prepend,omitempty"`
	Eval    yaml.Node `yaml:"eval,omitempty"`
}

// ---- Parse -----------------------------------------------------------------

// Parse parses a YAML document in either mapping or shorthand form and
// validates it.
func Parse(in []byte) (Document, error) {
	var docNode yaml.Node
	if err := yaml.Unmarshal(in, &docNode); err != nil {
		return Document{}, fmt.Errorf("phase=parse path=<doc>: %w: %v", ErrInvalidDocument, err)
	}
	if len(docNode.Content) == 0 {
		return Document{}, fmt.Errorf("phase=parse path=<doc>: %w: empty YAML", ErrInvalidDocument)
	}
	root := docNode.Content[0]

	var yd yamlDocument
	switch root.Kind {
	case yaml.SequenceNode:
		// Shorthand form: bare list of types.
		for _, n := range root.Content {
			yd.Types = append(yd.Types, *n)
		}
	case yaml.MappingNode:
		if err := root.Decode(&yd); err != nil {
			return Document{}, fmt.Errorf("phase=parse path=<doc>: %w: %v", ErrInvalidDocument, err)
		}
	default:
		return Document{}, fmt.Errorf("phase=parse path=<doc>: %w: unexpected YAML root kind: %d", ErrInvalidDocument, root.Kind)
	}

	doc, err := convertDocument(yd)
	if err != nil {
		return Document{}, err
	}
	if err := validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ---- Convert: yaml types → decl types --------------------------------------

func convertDocument(yd yamlDocument) (Document, error) {
	var doc Document
	for i := range yd.Types {
		td, err := convertType(&yd.Types[i], fmt.Sprintf("types[%d]", i))
		if err != nil {
			return Document{}, err
		}
		doc.Types = append(doc.Types, td)
	}
	for i := range yd.Late {
		ld, err := convertLate(&yd.Late[i], fmt.Sprintf("late[%d]", i))
		if err != nil {
			return Document{}, err
		}
		doc.Late = append(doc.Late, ld)
	}
	return doc, nil
}

func convertType(n *yaml.Node, path string) (TypeDecl, error) {
	var yt yamlType
	if err := n.Decode(&yt); err != nil {
		return TypeDecl{}, fmt.Errorf("phase=parse path=%s: %w: %v", path, ErrInvalidDocument, err)
	}
	td := TypeDecl{
		Name:              yt.Name,
		Kind:              yt.Kind,
		Super:             yt.Super,
		Component:         yt.Component,
		Dynamic:           yt.Dynamic,
		Abstract:          yt.Abstract,
		SingletonAbstract: yt.SingletonAbstract,
		Line:              n.Line,
	}
	if td.Kind == "" {
		td.Kind = KindClass
	}
	// yaml.Node.Kind == 0 means the key was absent.
	if yt.Body.Kind != 0 {
		body, err := convertStatements(&yt.Body, path+".body")
		if err != nil {
			return TypeDecl{}, err
		}
		td.Body = body
	}
	return td, nil
}

func convertLate(n *yaml.Node, path string) (LateDecl, error) {
	var yl yamlLate
	if err := n.Decode(&yl); err != nil {
		return LateDecl{}, fmt.Errorf("phase=parse path=%s: %w: %v", path, ErrInvalidDocument, err)
	}
	ld := LateDecl{Target: yl.Target, Line: n.Line}

	count := 0
	if yl.Include != "" {
		ld.Op, ld.Module = OpInclude, yl.Include
		count++
	}
	if yl.Extend != "" {
		ld.Op, ld.Module = OpExtend, yl.Extend
		count++
	}
	if yl.Prepend != "" {
		ld.Op, ld.Module = OpPrepend, yl.Prepend
		count++
	}
	if yl.Eval.Kind != 0 {
		body, err := convertStatements(&yl.Eval, path+".eval")
		if err != nil {
			return LateDecl{}, err
		}
		ld.Op, ld.Body = OpBlock, body
		count++
	}
	if count != 1 {
		return LateDecl{}, fmt.Errorf("phase=parse path=%s: %w: late entry must define exactly one of: include, prepend, extend, or eval", path, ErrInvalidDocument)
	}
	return ld, nil
}

// convertStatements converts a statement list. Each statement is a mapping
// with a single key naming its operation.
func convertStatements(n *yaml.Node, path string) ([]Statement, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("phase=parse path=%s: %w: expected a list of statements, got YAML kind %d", path, ErrInvalidDocument, n.Kind)
	}
	out := make([]Statement, 0, len(n.Content))
	for i, item := range n.Content {
		st, err := convertStatement(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func convertStatement(n *yaml.Node, path string) (Statement, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return Statement{}, fmt.Errorf("phase=parse path=%s: %w: a statement is a mapping with exactly one key", path, ErrInvalidDocument)
	}
	key, val := n.Content[0], n.Content[1]
	op, ok := opKeys[key.Value]
	if !ok {
		return Statement{}, fmt.Errorf("phase=parse path=%s: %w: unknown statement %q", path, ErrInvalidDocument, key.Value)
	}
	st := Statement{Op: op, Line: key.Line}
	if op.nests() {
		body, err := convertStatements(val, path+"."+key.Value)
		if err != nil {
			return Statement{}, err
		}
		st.Body = body
		return st, nil
	}
	if val.Kind != yaml.ScalarNode {
		return Statement{}, fmt.Errorf("phase=parse path=%s: %w: %s expects a scalar", path, ErrInvalidDocument, key.Value)
	}
	st.Arg = val.Value
	return st, nil
}
