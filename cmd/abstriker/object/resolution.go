package object

// ResolutionTable is the ancestor chain of a type together with the owner
// of every member name reachable through it. It is built once per type and
// universe generation, then reused until something changes.
type ResolutionTable struct {
	owner     *Type
	ancestors []*Type
	index     map[*Type]int
	resolve   map[string]*Method
}

// Seal returns the resolution table of t for the current generation.
func (t *Type) Seal() *ResolutionTable {
	if t.table != nil && t.tableGen == t.u.gen {
		return t.table
	}
	chain := t.Ancestors()
	rt := &ResolutionTable{
		owner:     t,
		ancestors: chain,
		index:     make(map[*Type]int, len(chain)),
		resolve:   make(map[string]*Method),
	}
	for i, a := range chain {
		if _, dup := rt.index[a]; !dup {
			rt.index[a] = i
		}
		for _, name := range a.order {
			if _, ok := rt.resolve[name]; !ok {
				rt.resolve[name] = a.methods[name]
			}
		}
	}
	t.table = rt
	t.tableGen = t.u.gen
	return rt
}

// Owner returns the type the table was built for.
func (r *ResolutionTable) Owner() *Type { return r.owner }

// Ancestors returns a copy of the chain, most specific first.
func (r *ResolutionTable) Ancestors() []*Type {
	out := make([]*Type, len(r.ancestors))
	copy(out, r.ancestors)
	return out
}

// Lookup resolves name to the most specific definition in the chain.
func (r *ResolutionTable) Lookup(name string) (*Method, bool) {
	m, ok := r.resolve[name]
	return m, ok
}

// Index returns the first position of t in the chain, or -1.
func (r *ResolutionTable) Index(t *Type) int {
	if i, ok := r.index[t]; ok {
		return i
	}
	return -1
}
