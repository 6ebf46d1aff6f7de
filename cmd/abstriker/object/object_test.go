package object

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClass(t *testing.T, u *Universe, name string, super *Type) *Type {
	t.Helper()
	c, err := u.NewClass(super)
	require.NoError(t, err)
	if name != "" {
		u.Bind(name, c)
	}
	return c
}

func mustModule(u *Universe, name string) *Type {
	m := u.NewModule()
	u.Bind(name, m)
	return m
}

func names(chain []*Type) []string {
	out := make([]string, len(chain))
	for i, a := range chain {
		out[i] = a.Name()
	}
	return out
}

func TestAncestors_ClassChain(t *testing.T) {
	u := NewUniverse()
	a := mustClass(t, u, "A", nil)
	b := mustClass(t, u, "B", a)

	assert.Equal(t, []string{"B", "A", "Object"}, names(b.Ancestors()))
}

func TestAncestors_IncludedModulesMostRecentFirst(t *testing.T) {
	u := NewUniverse()
	m1 := mustModule(u, "M1")
	m2 := mustModule(u, "M2")
	c := mustClass(t, u, "C", nil)

	_, err := c.Include(m1)
	require.NoError(t, err)
	_, err = c.Include(m2)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "M2", "M1", "Object"}, names(c.Ancestors()))
}

func TestAncestors_ModuleIncludesAreExpanded(t *testing.T) {
	u := NewUniverse()
	inner := mustModule(u, "Inner")
	outer := mustModule(u, "Outer")
	_, err := outer.Include(inner)
	require.NoError(t, err)

	c := mustClass(t, u, "C", nil)
	_, err = c.Include(outer)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "Outer", "Inner", "Object"}, names(c.Ancestors()))
}

func TestAncestors_ModuleAlreadyInSuperclassChainIsNotRepeated(t *testing.T) {
	u := NewUniverse()
	m := mustModule(u, "M")
	a := mustClass(t, u, "A", nil)
	_, err := a.Include(m)
	require.NoError(t, err)
	b := mustClass(t, u, "B", a)
	_, err = b.Include(m)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A", "M", "Object"}, names(b.Ancestors()))
}

func TestInclude_ModuleReachedThroughAnotherIncludeIsNotMoved(t *testing.T) {
	u := NewUniverse()
	b1 := mustModule(u, "B1")
	b1.Define("foo", nil)
	bb := mustModule(u, "BB")
	_, err := bb.Include(b1)
	require.NoError(t, err)
	bb.Define("foo", nil)

	c := mustClass(t, u, "CC", nil)
	_, err = c.Include(bb)
	require.NoError(t, err)
	added, err := c.Include(b1)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{"CC", "BB", "B1", "Object"}, names(c.Ancestors()))
	m, ok := c.Seal().Lookup("foo")
	require.True(t, ok)
	assert.Same(t, bb, m.Owner)
}

func TestInclude_ModuleInSuperclassChainIsANoOp(t *testing.T) {
	u := NewUniverse()
	m := mustModule(u, "M")
	a := mustClass(t, u, "A", nil)
	_, err := a.Include(m)
	require.NoError(t, err)
	b := mustClass(t, u, "B", a)

	added, err := b.Include(m)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Empty(t, b.Includes())
}

func TestPrepend_ComesBeforeTheType(t *testing.T) {
	u := NewUniverse()
	inc := mustModule(u, "Inc")
	p1 := mustModule(u, "P1")
	p2 := mustModule(u, "P2")
	inner := mustModule(u, "Inner")
	_, err := p2.Include(inner)
	require.NoError(t, err)

	c := mustClass(t, u, "C", nil)
	for _, step := range []func() (bool, error){
		func() (bool, error) { return c.Include(inc) },
		func() (bool, error) { return c.Prepend(p1) },
		func() (bool, error) { return c.Prepend(p2) },
	} {
		added, err := step()
		require.NoError(t, err)
		assert.True(t, added)
	}

	assert.Equal(t, []string{"P2", "Inner", "P1", "C", "Inc", "Object"}, names(c.Ancestors()))
	assert.Equal(t, []*Type{p2, p1}, c.Prepends())

	added, err := c.Prepend(inner)
	require.NoError(t, err)
	assert.False(t, added, "already in front of C")
	added, err = c.Include(p1)
	require.NoError(t, err)
	assert.False(t, added, "already in the chain")

	p1.Define("foo", nil)
	inc.Define("foo", nil)
	c.Define("foo", nil)
	table := c.Seal()
	m, ok := table.Lookup("foo")
	require.True(t, ok)
	assert.Same(t, p1, m.Owner)
	assert.Equal(t, 3, table.Index(c))
}

func TestPrepend_Errors(t *testing.T) {
	u := NewUniverse()
	a := mustModule(u, "A")
	b := mustModule(u, "B")
	c := mustClass(t, u, "C", nil)
	_, err := a.Prepend(b)
	require.NoError(t, err)

	_, err = b.Prepend(a)
	assert.ErrorIs(t, err, ErrCycleDetected)
	_, err = a.Prepend(c)
	assert.ErrorIs(t, err, ErrNotModule)
	_, err = a.Prepend(a)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestAncestors_SingletonFollowsSuperclassSingleton(t *testing.T) {
	u := NewUniverse()
	ext := mustModule(u, "Ext")
	a := mustClass(t, u, "A", nil)
	b := mustClass(t, u, "B", a)
	_, err := b.Meta().Include(ext)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"#<Class:B>", "Ext", "#<Class:A>", "#<Class:Object>"},
		names(b.Meta().Ancestors()))
}

func TestInclude_Errors(t *testing.T) {
	u := NewUniverse()
	a := mustModule(u, "A")
	b := mustModule(u, "B")
	c := mustClass(t, u, "C", nil)

	_, err := a.Include(b)
	require.NoError(t, err)

	t.Run("cycle", func(t *testing.T) {
		_, err := b.Include(a)
		require.True(t, errors.Is(err, ErrCycleDetected), "got %v", err)
	})
	t.Run("self", func(t *testing.T) {
		_, err := a.Include(a)
		require.ErrorIs(t, err, ErrCycleDetected)
	})
	t.Run("class argument", func(t *testing.T) {
		_, err := a.Include(c)
		require.ErrorIs(t, err, ErrNotModule)
	})
	t.Run("repeat is a no-op", func(t *testing.T) {
		added, err := a.Include(b)
		require.NoError(t, err)
		assert.False(t, added)
	})
}

func TestNewClass_RejectsModuleSuper(t *testing.T) {
	u := NewUniverse()
	m := mustModule(u, "M")
	_, err := u.NewClass(m)
	require.ErrorIs(t, err, ErrNotClass)
}

func TestNames(t *testing.T) {
	u := NewUniverse()
	c, err := u.NewClass(nil)
	require.NoError(t, err)
	assert.False(t, c.Named())
	assert.Contains(t, c.Name(), "#<Class:0x")

	u.Bind("Named", c)
	u.Bind("Alias", c)
	assert.Equal(t, "Named", c.Name())
	assert.Equal(t, "#<Class:Named>", c.Meta().Name())

	u.Unbind("Named")
	_, ok := u.Lookup("Named")
	assert.False(t, ok)
	assert.Equal(t, "Named", c.Name())
}

func TestSeal_ResolvesMostSpecificOwner(t *testing.T) {
	u := NewUniverse()
	m := mustModule(u, "M")
	m.Define("area", nil)
	m.Define("name", nil)
	c := mustClass(t, u, "C", nil)
	_, err := c.Include(m)
	require.NoError(t, err)
	c.Define("area", nil)

	rt := c.Seal()
	owner, ok := rt.Lookup("area")
	require.True(t, ok)
	assert.Same(t, c, owner.Owner)

	owner, ok = rt.Lookup("name")
	require.True(t, ok)
	assert.Same(t, m, owner.Owner)

	_, ok = rt.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, 0, rt.Index(c))
	assert.Equal(t, 1, rt.Index(m))
	assert.Equal(t, -1, rt.Index(u.NewModule()))
}

func TestSeal_CachedUntilMutation(t *testing.T) {
	u := NewUniverse()
	c := mustClass(t, u, "C", nil)

	first := c.Seal()
	assert.Same(t, first, c.Seal())

	c.Define("x", nil)
	second := c.Seal()
	assert.NotSame(t, first, second)
	_, ok := second.Lookup("x")
	assert.True(t, ok)
}

func TestMethods_DefinitionOrder(t *testing.T) {
	u := NewUniverse()
	c := mustClass(t, u, "C", nil)
	c.Define("b", nil)
	c.Define("a", nil)
	c.Define("b", "redefined")

	ms := c.Methods()
	require.Len(t, ms, 2)
	assert.Equal(t, "b", ms[0].Name)
	assert.Equal(t, "redefined", ms[0].Body)
	assert.Equal(t, "a", ms[1].Name)
}
