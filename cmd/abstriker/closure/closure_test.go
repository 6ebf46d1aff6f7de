package closure

import (
	"errors"
	"testing"

	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	u   *object.Universe
	reg *registry.Registry
}

func newFixture() *fixture {
	return &fixture{u: object.NewUniverse(), reg: registry.New()}
}

func (f *fixture) class(t *testing.T, name string, super *object.Type, defs ...string) *object.Type {
	t.Helper()
	c, err := f.u.NewClass(super)
	require.NoError(t, err)
	f.u.Bind(name, c)
	for _, d := range defs {
		c.Define(d, nil)
	}
	return c
}

func (f *fixture) module(name string, defs ...string) *object.Type {
	m := f.u.NewModule()
	f.u.Bind(name, m)
	for _, d := range defs {
		m.Define(d, nil)
	}
	return m
}

func TestCheck_ShapeScenario(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil, "area")
	f.reg.DeclareAbstract(shape, "area")

	circle := f.class(t, "Circle", shape)
	square := f.class(t, "Square", shape, "area")

	v := Check(circle, lifecycle.Instance, f.reg)
	require.NotNil(t, v)
	assert.Same(t, circle, v.Type)
	assert.Same(t, shape, v.Component)
	assert.Equal(t, "area", v.Member)
	assert.Same(t, shape, v.Owner)
	assert.Equal(t, "Shape#area is abstract, but not implemented by Circle", v.Error())

	assert.Nil(t, Check(square, lifecycle.Instance, f.reg))
}

func TestCheck_ViolationMatchesSentinel(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil)
	f.reg.DeclareAbstract(shape, "area")
	circle := f.class(t, "Circle", shape)

	var err error = Check(circle, lifecycle.Instance, f.reg)
	require.True(t, errors.Is(err, ErrNotImplemented))

	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Nil(t, v.Owner, "undefined abstract member resolves nowhere")
}

func TestCheck_OverrideFromIntermediateAncestor(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil, "area")
	f.reg.DeclareAbstract(shape, "area")
	base := f.class(t, "Base", shape, "area")
	leaf := f.class(t, "Leaf", base)

	assert.Nil(t, Check(leaf, lifecycle.Instance, f.reg))
}

func TestCheck_ModuleOverrideMoreSpecificThanComponent(t *testing.T) {
	f := newFixture()
	comp := f.module("Comp")
	f.reg.DeclareAbstract(comp, "run")
	impl := f.module("Impl", "run")

	c := f.class(t, "C", nil)
	_, err := c.Include(comp)
	require.NoError(t, err)
	_, err = c.Include(impl)
	require.NoError(t, err)
	assert.Nil(t, Check(c, lifecycle.Instance, f.reg))

	d := f.class(t, "D", nil)
	_, err = d.Include(impl)
	require.NoError(t, err)
	_, err = d.Include(comp)
	require.NoError(t, err)
	v := Check(d, lifecycle.Instance, f.reg)
	require.NotNil(t, v)
	assert.Same(t, impl, v.Owner, "owner less specific than the component")
}

func TestCheck_FirstViolationInAncestorThenDeclarationOrder(t *testing.T) {
	f := newFixture()
	outer := f.module("Outer")
	f.reg.DeclareAbstract(outer, "z")
	inner := f.class(t, "Inner", nil)
	f.reg.DeclareAbstract(inner, "b")
	f.reg.DeclareAbstract(inner, "a")

	c := f.class(t, "C", inner)
	_, err := c.Include(outer)
	require.NoError(t, err)

	v := Check(c, lifecycle.Instance, f.reg)
	require.NotNil(t, v)
	assert.Same(t, outer, v.Component)

	c.Define("z", nil)
	v = Check(c, lifecycle.Instance, f.reg)
	require.NotNil(t, v)
	assert.Equal(t, "b", v.Member)
}

func TestCheck_TypeOwnDeclarationsAreIgnored(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil)
	f.reg.DeclareAbstract(shape, "area")

	assert.Nil(t, Check(shape, lifecycle.Instance, f.reg))
}

func TestCheck_SidesAreIndependent(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil)
	f.reg.DeclareAbstract(shape.Meta(), "build")

	circle := f.class(t, "Circle", shape)
	circle.Define("build", nil)

	assert.Nil(t, Check(circle, lifecycle.Instance, f.reg))
	v := Check(circle, lifecycle.Singleton, f.reg)
	require.NotNil(t, v)
	assert.Equal(t, "Shape.build is abstract, but not implemented by Circle", v.Error())
	assert.Equal(t, lifecycle.Singleton, v.Side)

	circle.Meta().Define("build", nil)
	assert.Nil(t, Check(circle, lifecycle.Singleton, f.reg))
}

func TestCheck_ExtendedModuleOnSingletonSide(t *testing.T) {
	f := newFixture()
	factory := f.module("Factory")
	f.reg.DeclareAbstract(factory, "create")

	c := f.class(t, "C", nil)
	_, err := c.Meta().Include(factory)
	require.NoError(t, err)

	v := Check(c, lifecycle.Singleton, f.reg)
	require.NotNil(t, v)
	assert.Equal(t, "Factory#create is abstract, but not implemented by C", v.Error())
}

func TestCheck_PrependedModuleImplements(t *testing.T) {
	f := newFixture()
	b1 := f.module("B1", "foo")
	f.reg.DeclareAbstract(b1, "foo")
	impl := f.module("Impl", "foo")

	c := f.class(t, "C", nil)
	_, err := c.Include(b1)
	require.NoError(t, err)
	require.NotNil(t, Check(c, lifecycle.Instance, f.reg))

	_, err = c.Prepend(impl)
	require.NoError(t, err)
	assert.Nil(t, Check(c, lifecycle.Instance, f.reg))
}

func TestCheck_PrependedComponentIsNotChecked(t *testing.T) {
	f := newFixture()
	b1 := f.module("B1", "foo")
	f.reg.DeclareAbstract(b1, "foo")

	c := f.class(t, "C", nil)
	_, err := c.Prepend(b1)
	require.NoError(t, err)
	assert.Nil(t, Check(c, lifecycle.Instance, f.reg))
}

func TestQualify(t *testing.T) {
	f := newFixture()
	shape := f.class(t, "Shape", nil)

	assert.Equal(t, "Shape#area", Qualify(shape, "area"))
	assert.Equal(t, "Shape.build", Qualify(shape.Meta(), "build"))
	v := &Violation{Type: shape, Component: shape.Meta(), Member: "build"}
	assert.Equal(t, Qualify(shape.Meta(), "build"), v.Qualified())
}
