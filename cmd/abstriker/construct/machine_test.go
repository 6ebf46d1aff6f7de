package construct

import (
	"errors"
	"testing"

	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/scope"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events       []lifecycle.Event
	compositions []lifecycle.Composition
	hookErr      error
}

func (r *recorder) Observe(e lifecycle.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Attached(c lifecycle.Composition) error {
	r.compositions = append(r.compositions, c)
	return r.hookErr
}

func (r *recorder) kinds() []lifecycle.Kind {
	out := make([]lifecycle.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func newMachine(t *testing.T) (*Machine, *recorder) {
	t.Helper()
	rec := &recorder{}
	bus := lifecycle.NewBus()
	bus.Subscribe(rec)
	return New(object.NewUniverse(), bus, rec), rec
}

var here = scope.At("m.rb", 1, "class")

func TestDefineClass_EventsAndDerive(t *testing.T) {
	m, rec := newMachine(t)

	c, err := m.DefineClass("Job", nil, here, func(c *object.Type) error {
		assert.Equal(t, 1, m.Open(c))
		assert.True(t, m.Constructing(c))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, m.Constructing(c))

	assert.Equal(t, []lifecycle.Kind{lifecycle.ScopeOpen, lifecycle.ScopeClose}, rec.kinds())
	require.Len(t, rec.compositions, 1)
	derive := rec.compositions[0]
	assert.Equal(t, lifecycle.Derive, derive.Kind)
	assert.Same(t, c, derive.Target)
	assert.Same(t, m.Universe().Object(), derive.Component)
	assert.True(t, derive.Fresh)
	assert.Equal(t, []lifecycle.Side{lifecycle.Instance, lifecycle.Singleton}, derive.Sides)
}

func TestDefineClass_ReopenRunsBodyWithoutDerive(t *testing.T) {
	m, rec := newMachine(t)
	first, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)

	again, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, rec.compositions, 1)

	other, err := m.DefineClass("Other", nil, here, nil)
	require.NoError(t, err)
	_, err = m.DefineClass("Job", other, here, nil)
	assert.ErrorIs(t, err, object.ErrSuperclassMismatch)
}

func TestDefineClass_FailureUnbindsAndPublishesOnce(t *testing.T) {
	m, rec := newMachine(t)
	boom := errors.New("boom")

	_, err := m.DefineClass("Outer", nil, here, func(*object.Type) error {
		_, err := m.DefineClass("Inner", nil, here, func(*object.Type) error {
			return m.Raise(boom)
		})
		return err
	})
	require.ErrorIs(t, err, boom)

	failures := 0
	for _, e := range rec.events {
		if e.Kind == lifecycle.Failure {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, []string{object.RootName}, m.Universe().Constants())
	assert.NotContains(t, rec.kinds(), lifecycle.ScopeClose)
}

func TestDefineModule_KindConflict(t *testing.T) {
	m, _ := newMachine(t)
	_, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)

	_, err = m.DefineModule("Job", here, nil)
	assert.ErrorIs(t, err, object.ErrNotModule)
}

func TestNewClass_ConstructReturn(t *testing.T) {
	m, rec := newMachine(t)

	_, err := m.NewClass(nil, here, nil)
	require.NoError(t, err)
	require.Equal(t, []lifecycle.Kind{lifecycle.ConstructReturn}, rec.kinds())
	assert.False(t, rec.events[0].Bodied)

	rec.events = nil
	_, err = m.NewClass(nil, here, func(*object.Type) error { return nil })
	require.NoError(t, err)
	require.Equal(t, []lifecycle.Kind{lifecycle.ScopeOpen, lifecycle.ScopeClose, lifecycle.ConstructReturn}, rec.kinds())
	assert.True(t, rec.events[2].Bodied)
}

func TestInclude_IntoSingletonReportsSingletonSide(t *testing.T) {
	m, rec := newMachine(t)
	mod, err := m.DefineModule("Mixin", here, nil)
	require.NoError(t, err)

	c, err := m.DefineClass("Job", nil, here, func(c *object.Type) error {
		return m.OpenSingleton(c, func(meta *object.Type) error {
			return m.Include(meta, mod, here)
		})
	})
	require.NoError(t, err)

	last := rec.compositions[len(rec.compositions)-1]
	assert.Equal(t, lifecycle.Include, last.Kind)
	assert.Same(t, c, last.Target)
	assert.Equal(t, []lifecycle.Side{lifecycle.Singleton}, last.Sides)
	assert.Equal(t, 2, last.Open)
	assert.Contains(t, c.Meta().Ancestors(), mod)
}

func TestExtend_AttachesToSingleton(t *testing.T) {
	m, rec := newMachine(t)
	mod, err := m.DefineModule("Mixin", here, nil)
	require.NoError(t, err)
	c, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)

	require.NoError(t, m.Extend(c, mod, here))
	last := rec.compositions[len(rec.compositions)-1]
	assert.Equal(t, lifecycle.Extend, last.Kind)
	assert.Zero(t, last.Open)
	assert.False(t, last.Fresh)
	assert.Equal(t, lifecycle.DirectiveReturn, rec.events[len(rec.events)-1].Kind)
	assert.Contains(t, c.Meta().Ancestors(), mod)
	assert.NotContains(t, c.Ancestors(), mod)
}

func TestPrepend_ComposesInstanceSide(t *testing.T) {
	m, rec := newMachine(t)
	mod, err := m.DefineModule("Mixin", here, nil)
	require.NoError(t, err)

	c, err := m.DefineClass("Job", nil, here, func(c *object.Type) error {
		return m.Prepend(c, mod, here)
	})
	require.NoError(t, err)

	last := rec.compositions[len(rec.compositions)-1]
	assert.Equal(t, lifecycle.Prepend, last.Kind)
	assert.Same(t, c, last.Target)
	assert.Equal(t, []lifecycle.Side{lifecycle.Instance}, last.Sides)
	assert.Equal(t, 1, last.Open)
	assert.Equal(t, []*object.Type{mod, c}, c.Ancestors()[:2])

	assert.ErrorIs(t, m.Prepend(c, nil, here), ErrNilType)
	assert.ErrorIs(t, m.Prepend(c, c, here), object.ErrNotModule)
}

func TestInclude_Errors(t *testing.T) {
	m, _ := newMachine(t)
	c, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Include(c, nil, here), ErrNilType)
	assert.ErrorIs(t, m.Include(c, c, here), object.ErrNotModule)
}

func TestBlock_DepthAndFrames(t *testing.T) {
	m, rec := newMachine(t)

	err := m.Block(func() error {
		assert.Equal(t, 1, m.Depth())
		assert.Equal(t, 0, m.Frame())
		_, err := m.DefineClass("Job", nil, here, func(*object.Type) error {
			assert.Zero(t, m.Depth(), "a scope body starts a new frame")
			assert.NotZero(t, m.Frame())
			return m.Block(func() error { return nil })
		})
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, m.Depth())

	exits := []lifecycle.Event{}
	for _, e := range rec.events {
		if e.Kind == lifecycle.BlockExit {
			exits = append(exits, e)
		}
	}
	require.Len(t, exits, 2)
	assert.NotZero(t, exits[0].Frame)
	assert.Zero(t, exits[1].Frame)
	assert.Zero(t, exits[1].Depth)
}

func TestHookErrorAbortsConstruction(t *testing.T) {
	m, rec := newMachine(t)
	rec.hookErr = errors.New("rejected")
	ran := false

	_, err := m.DefineClass("Job", nil, here, func(*object.Type) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, rec.hookErr)
	assert.False(t, ran)
	_, ok := m.Universe().Lookup("Job")
	assert.False(t, ok)
}

func TestFailingResetsBetweenStatements(t *testing.T) {
	m, _ := newMachine(t)
	boom := errors.New("boom")
	require.ErrorIs(t, m.Raise(boom), boom)
	assert.Same(t, boom, m.Failing())

	_, err := m.DefineClass("Job", nil, here, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Failing())
}
