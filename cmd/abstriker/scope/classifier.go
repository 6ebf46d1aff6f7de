package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
)

// DefaultCacheSize bounds the number of indexed units kept in memory.
const DefaultCacheSize = 128

// Loader reads the content of a source unit.
type Loader func(unit string) ([]byte, error)

// Option configures a Classifier.
type Option func(*Classifier)

// WithCacheSize sets the number of unit indexes kept. Values below one keep
// the default.
func WithCacheSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithLoader replaces the file system loader used for units that were not
// provided explicitly.
func WithLoader(fn Loader) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.load = fn
		}
	}
}

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) { c.log = l }
}

// Classifier decides whether a directive call is a direct statement of its
// target's opening scope. Each unit is parsed at most once per content
// hash; the resulting call index is kept in an LRU cache.
// A Classifier is safe for concurrent use.
type Classifier struct {
	size  int
	load  Loader
	log   zerolog.Logger
	cache *lru.Cache[string, *unitIndex]

	mu      sync.Mutex
	sources map[string][]byte
	parses  int
}

// New returns a Classifier reading unknown units from the file system.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		size:    DefaultCacheSize,
		load:    os.ReadFile,
		log:     zerolog.Nop(),
		sources: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	cache, err := lru.New[string, *unitIndex](c.size)
	if err != nil {
		return nil, fmt.Errorf("creating unit cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Provide registers the content of a unit, replacing earlier content.
// Front-ends call it for every unit they execute so that the classifier
// never sees a different revision than the one running.
func (c *Classifier) Provide(unit string, src []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[unit] = src
}

// Parses returns how many units have been parsed so far.
func (c *Classifier) Parses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parses
}

// Purge drops every cached index and provided source.
func (c *Classifier) Purge() {
	c.mu.Lock()
	c.sources = make(map[string][]byte)
	c.mu.Unlock()
	c.cache.Purge()
}

// Classify returns the placement of the directive at site with respect to
// the type named target. A placement carried by the site itself is returned
// unchanged. Any failure to consult the source yields Ambiguous.
func (c *Classifier) Classify(ctx context.Context, site Site, target string) Placement {
	if site.Placement != Unknown {
		return site.Placement
	}
	if site.Unit == "" || site.Line <= 0 || site.Keyword == "" {
		return Ambiguous
	}
	idx, err := c.index(ctx, site.Unit)
	if err != nil {
		c.log.Debug().Err(err).Str("unit", site.Unit).Msg("classifier falling back to ambiguous")
		return Ambiguous
	}
	return idx.classify(site.Line, site.Keyword, target)
}

func (c *Classifier) index(ctx context.Context, unit string) (*unitIndex, error) {
	src, err := c.source(unit)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(src)
	key := unit + "@" + hex.EncodeToString(sum[:8])
	if idx, ok := c.cache.Get(key); ok {
		return idx, nil
	}

	tree, err := Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	c.mu.Lock()
	c.parses++
	c.mu.Unlock()

	idx := buildIndex(tree.RootNode(), src)
	c.cache.Add(key, idx)
	c.log.Debug().Str("unit", unit).Int("calls", idx.size()).Msg("indexed source unit")
	return idx, nil
}

func (c *Classifier) source(unit string) ([]byte, error) {
	c.mu.Lock()
	src, ok := c.sources[unit]
	c.mu.Unlock()
	if ok {
		return src, nil
	}
	src, err := c.load(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoSource, unit, err)
	}
	c.Provide(unit, src)
	return src, nil
}

// ---- Index -----------------------------------------------------------------

type receiverKind int

const (
	receiverNone receiverKind = iota
	receiverSelf
	receiverConstant
	receiverOther
)

// callSite is what the classifier remembers of one call node.
type callSite struct {
	keyword   string
	receiver  receiverKind
	constant  string
	statement bool
	broken    bool
}

// unitIndex maps a 1-based line to the calls whose method name starts on it.
type unitIndex struct {
	lines map[int][]callSite
}

func (ix *unitIndex) size() int {
	n := 0
	for _, calls := range ix.lines {
		n += len(calls)
	}
	return n
}

func buildIndex(root *sitter.Node, src []byte) *unitIndex {
	ix := &unitIndex{lines: make(map[int][]callSite)}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "call" {
			if method := n.ChildByFieldName("method"); method != nil {
				cs := callSite{
					keyword:   method.Content(src),
					statement: isStatement(n),
					broken:    n.HasError(),
				}
				cs.receiver, cs.constant = receiverOf(n, src)
				line := Line(method)
				ix.lines[line] = append(ix.lines[line], cs)
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return ix
}

func receiverOf(call *sitter.Node, src []byte) (receiverKind, string) {
	r := call.ChildByFieldName("receiver")
	if r == nil {
		return receiverNone, ""
	}
	switch r.Type() {
	case "self":
		return receiverSelf, ""
	case "constant", "scope_resolution":
		return receiverConstant, r.Content(src)
	}
	return receiverOther, ""
}

// isStatement reports whether n is a direct statement of the program or of a
// class, module or singleton class body.
func isStatement(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	if p.Type() == "body_statement" {
		if p = p.Parent(); p == nil {
			return false
		}
	}
	switch p.Type() {
	case "program", "class", "module", "singleton_class":
		return true
	}
	return false
}

func (ix *unitIndex) classify(line int, keyword, target string) Placement {
	out := Ambiguous
	for _, cs := range ix.lines[line] {
		if cs.keyword != keyword || cs.broken {
			continue
		}
		if cs.placementFor(target) == TopLevel {
			return TopLevel
		}
		out = Nested
	}
	return out
}

func (cs callSite) placementFor(target string) Placement {
	if !cs.statement {
		return Nested
	}
	switch cs.receiver {
	case receiverNone, receiverSelf:
		return TopLevel
	case receiverConstant:
		if namesTarget(cs.constant, target) {
			return TopLevel
		}
	}
	return Nested
}

// namesTarget matches a receiver constant against a possibly qualified type
// name, so that Inner inside Outer matches Outer::Inner.
func namesTarget(constant, target string) bool {
	constant = strings.TrimPrefix(constant, "::")
	if constant == target {
		return true
	}
	return strings.HasSuffix(target, "::"+constant)
}
