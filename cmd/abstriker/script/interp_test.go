package script

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"abstriker/cmd/abstriker/closure"
	"abstriker/cmd/abstriker/engine"
	"abstriker/cmd/abstriker/lifecycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newInterpreter(t *testing.T, opts ...Option) *Interpreter {
	t.Helper()
	e, err := engine.New()
	require.NoError(t, err)
	in := New(e.NewSession(context.Background()), opts...)
	t.Cleanup(in.Close)
	return in
}

func (in *Interpreter) mustRun(t *testing.T, src string) {
	t.Helper()
	require.NoError(t, in.Run(context.Background(), "test.rb", []byte(src)))
}

func runErr(t *testing.T, in *Interpreter, src string) *Error {
	t.Helper()
	err := in.Run(context.Background(), "test.rb", []byte(src))
	require.Error(t, err)
	var se *Error
	require.True(t, errors.As(err, &se), "expected a script error, got %T: %v", err, err)
	return se
}

func requireViolation(t *testing.T, err *Error, typeName, component, member string) *closure.Violation {
	t.Helper()
	var v *closure.Violation
	require.True(t, errors.As(err, &v), "expected a violation, got %v", err)
	assert.Equal(t, ViolationClass, err.Class)
	if typeName != "" {
		assert.Equal(t, typeName, v.Type.Name())
	}
	assert.Equal(t, component, v.Component.Name())
	assert.Equal(t, member, v.Member)
	return v
}

func local(t *testing.T, in *Interpreter, name string) Value {
	t.Helper()
	v, ok := in.top.get(name)
	require.True(t, ok, "local %s not set", name)
	return v
}

const a1 = `
class A1
  extend Abstriker

  abstract def foo
  end
end
`

const b1 = `
module B1
  extend Abstriker

  abstract def foo
  end
end
`

const d1 = `
class D1
  extend Abstriker

  abstract_singleton_method def self.foo
  end
end
`

// ---------------------------------------------------------------------------
// Class with an abstract member
// ---------------------------------------------------------------------------

func TestClass_SubclassNotImplementing(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)

	err := runErr(t, in, "class A2 < A1\nend\n")
	requireViolation(t, err, "A2", "A1", "foo")
	assert.Equal(t, "A1#foo is abstract, but not implemented by A2", err.Msg)
	assert.Equal(t, 1, err.Line)
	assert.Equal(t, "test.rb", err.Path)

	_, bound := in.u.Lookup("A2")
	assert.False(t, bound)
}

func TestClass_SubclassImplementing(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)
	in.mustRun(t, `
class A3 < A1
  def foo
  end
end

class A5 < A3
end
`)
}

func TestClass_DynamicSubclassWithBlocks(t *testing.T) {
	var out bytes.Buffer
	in := newInterpreter(t, WithOutput(&out))
	in.mustRun(t, a1)
	in.mustRun(t, `
Class.new(A1) do
  pr = proc do
  end
  pr.call

  [1, 2, 3].each do |n|
    n * 2
  end

  define_method(:hoge) do
    puts "hoge"
  end

  def foo
    "hoge"
  end
end
`)
	assert.Empty(t, out.String(), "method bodies are never run")
}

func TestClass_UnrelatedFailureWins(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"named", "class A4 < A1\n  raise \"err\"\n\n  def foo\n  end\nend\n"},
		{"dynamic", "Class.new(A1) do\n  raise \"err\"\n\n  def foo\n  end\nend\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInterpreter(t)
			in.mustRun(t, a1)

			err := runErr(t, in, tt.src)
			assert.Equal(t, "RuntimeError", err.Class)
			assert.Equal(t, "err", err.Msg)
			assert.Equal(t, 2, err.Line)
			assert.False(t, errors.Is(err, closure.ErrNotImplemented))
		})
	}
}

func TestClass_DynamicWithoutBlock(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)

	err := runErr(t, in, "Class.new(A1)\n")
	requireViolation(t, err, "", "A1", "foo")
}

func TestClass_RefinementIsNotAnImplementation(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)

	err := runErr(t, in, `
module A7
end

using Module.new {
  refine A7 do
    def foo
    end
  end
}

class A6 < A1
  include A7
end
`)
	requireViolation(t, err, "A6", "A1", "foo")
}

// ---------------------------------------------------------------------------
// Module with an abstract member
// ---------------------------------------------------------------------------

func TestModule_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		violation string
		side      lifecycle.Side
	}{
		{"class include not implementing", "class B2\n  include B1\nend\n", "B2", lifecycle.Instance},
		{"class include implementing", "class B3\n  include B1\n\n  def foo\n  end\nend\n\nclass B5 < B3\nend\n", "", 0},
		{"module include not implementing", "module B4\n  include B1\nend\n", "B4", lifecycle.Instance},
		{"module include implementing", "module B6\n  include B1\n\n  def foo\n  end\nend\n\nclass B9\n  include B6\nend\n", "", 0},
		{"module include after implementing", "module B7\n  def foo\n  end\n\n  include B1\nend\n\nmodule B8\n  include B7\nend\n", "", 0},
		{"dynamic class include implementing", "Class.new do\n  include B1\n\n  define_method(:foo) { }\nend\n", "", 0},
		{"dynamic class include after implementing", "Class.new do\n  define_method(:foo) { }\n\n  include B1\nend\n", "", 0},
		{"class extend not implementing", "class B13\n  extend B1\nend\n", "B13", lifecycle.Singleton},
		{"class extend implementing", "class B14\n  extend B1\n\n  def self.foo\n  end\nend\n\nclass B15 < B14\nend\n", "", 0},
		{"singleton include not implementing", "class B16\n  class << self\n    include B1\n  end\nend\n", "B16", lifecycle.Singleton},
		{"singleton include implementing", "class B17\n  class << self\n    def foo\n    end\n\n    include B1\n  end\nend\n\nclass B18 < B17\nend\n", "", 0},
		{"dynamic module include implementing", "Module.new do\n  include B1\n\n  define_method(:foo) { }\nend\n", "", 0},
		{"dynamic module include after implementing", "Module.new do\n  define_method(:foo) { }\n\n  include B1\nend\n", "", 0},
		{"module extend not implementing", "module B19\n  extend B1\nend\n", "B19", lifecycle.Singleton},
		{"module extend implementing", "module B20\n  extend B1\n\n  def self.foo\n  end\nend\n", "", 0},
		{"dynamic module extend implementing", "Module.new do\n  def self.foo\n  end\n\n  extend B1\nend\n", "", 0},
		{"module singleton include not implementing", "module B21\n  class << self\n    include B1\n  end\nend\n", "B21", lifecycle.Singleton},
		{"module singleton include implementing", "module B22\n  class << self\n    def foo\n    end\n\n    include B1\n  end\nend\n", "", 0},
		{"dynamic extend implementing then subclass", "klass = Class.new do\n  def self.foo\n  end\n\n  extend B1\nend\n\nClass.new(klass) do\n  class << self\n    def foo\n    end\n  end\nend\n", "", 0},
		{"dynamic class include implemented by prepended module", "module B11\n  def foo\n  end\nend\n\nClass.new do\n  include B1\n  prepend B11\nend\n", "", 0},
		{"dynamic module include implemented by prepended module", "module B12\n  def foo\n  end\nend\n\nModule.new do\n  include B1\n  prepend B12\nend\n", "", 0},
		{"class prepend not implementing", "module B23\nend\n\nclass B24\n  include B1\n  prepend B23\nend\n", "B24", lifecycle.Instance},
		{"include of a module already composed", "module BB\n  include B1\n\n  def foo\n  end\nend\n\nclass CC\n  include BB\n  include B1\nend\n", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInterpreter(t)
			in.mustRun(t, b1)

			if tt.violation == "" {
				in.mustRun(t, tt.src)
				return
			}
			v := requireViolation(t, runErr(t, in, tt.src), tt.violation, "B1", "foo")
			assert.Equal(t, tt.side, v.Side)
		})
	}
}

func TestModule_DynamicViolationsNameTheAnonymousType(t *testing.T) {
	tests := []struct {
		name string
		src  string
		side lifecycle.Side
	}{
		{"class include", "Class.new do\n    klass = self\n    include B1\n  end", lifecycle.Instance},
		{"class extend", "Class.new do\n    klass = self\n    extend B1\n  end", lifecycle.Singleton},
		{"module include", "Module.new do\n    klass = self\n    include B1\n  end", lifecycle.Instance},
		{"module extend", "Module.new do\n    klass = self\n    extend B1\n  end", lifecycle.Singleton},
		{"parent implements", "Class.new(B10) do\n    klass = self\n    include B1\n  end", lifecycle.Instance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInterpreter(t)
			in.mustRun(t, b1)
			in.mustRun(t, "class B10\n  def foo\n  end\nend\n")

			in.mustRun(t, `
ex = nil
klass = nil
begin
  `+tt.src+`
rescue Abstriker::NotImplementedError => e
  ex = e
end
`)
			ex, ok := local(t, in, "ex").(*Exception)
			require.True(t, ok, "the violation was not rescued")
			assert.Equal(t, ViolationClass, ex.Err.Class)

			var v *closure.Violation
			require.True(t, errors.As(ex.Err, &v))
			klass, ok := local(t, in, "klass").(TypeRef)
			require.True(t, ok)
			assert.Same(t, klass.T, v.Type)
			assert.Equal(t, "B1", v.Component.Name())
			assert.Equal(t, "foo", v.Member)
			assert.Equal(t, tt.side, v.Side)
		})
	}
}

// ---------------------------------------------------------------------------
// Class with an abstract singleton member
// ---------------------------------------------------------------------------

func TestSingleton_SubclassNotImplementing(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, d1)

	err := runErr(t, in, "class D2 < D1\nend\n")
	v := requireViolation(t, err, "D2", "#<Class:D1>", "foo")
	assert.Equal(t, lifecycle.Singleton, v.Side)
	assert.Equal(t, "D1.foo is abstract, but not implemented by D2", err.Msg)
}

func TestSingleton_Implementing(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, d1)
	in.mustRun(t, `
class D3 < D1
  def self.foo
  end
end

class D5 < D3
end

class D6 < D1
  class << self
    def foo
    end
  end
end

Class.new(D1) do
  pr = proc do
  end
  pr.call

  [1, 2, 3].each do |n|
    n * 2
  end

  class << self
    def foo
    end
  end
end
`)
}

func TestSingleton_RaiseInsideSingletonScope(t *testing.T) {
	for _, src := range []string{
		"class D4 < D1\n  class << self\n    raise \"err\"\n  end\nend\n",
		"Class.new(D1) do\n  class << self\n    raise \"err\"\n  end\nend\n",
	} {
		in := newInterpreter(t)
		in.mustRun(t, d1)

		err := runErr(t, in, src)
		assert.Equal(t, "RuntimeError", err.Class)
		assert.Equal(t, 3, err.Line)
	}
}

func TestSingleton_DynamicWithoutBlock(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, d1)

	requireViolation(t, runErr(t, in, "Class.new(D1)\n"), "", "#<Class:D1>", "foo")
}

// ---------------------------------------------------------------------------
// Mixed
// ---------------------------------------------------------------------------

func TestComplexPattern(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, `
module Foo
  extend Abstriker

  abstract def foo
  end
end

module Bar
  extend Abstriker

  abstract def bar
  end
end

c = Class.new do
  extend Foo

  self.include Foo
  include Bar

  def foo
  end
  alias :bar :foo

  def self.foo
  end
end

class Hoge < c
end

Module.new do
  include \
    Foo

  class_eval do
    extend Foo
  end

  def foo
  end

  def self.foo
  end
end
`)

	err := runErr(t, in, "c = Class.new\nc.send(:include, Foo)\n")
	requireViolation(t, err, "", "Foo", "foo")
	assert.Equal(t, 2, err.Line)

	err = runErr(t, in, "c = Class.new\nc.extend Foo\n")
	v := requireViolation(t, err, "", "Foo", "foo")
	assert.Equal(t, lifecycle.Singleton, v.Side)
}

func TestLateIncludeInsideClassEval(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, b1)
	in.mustRun(t, `
class Job
end

Job.class_eval do
  include B1

  def foo
  end
end
`)

	err := runErr(t, in, `
class Task
end

Task.class_eval do
  include B1
end
`)
	requireViolation(t, err, "Task", "B1", "foo")
}

func TestLateTopLevelInclude(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, b1)

	err := runErr(t, in, "class Job\nend\n\nJob.include(B1)\n")
	requireViolation(t, err, "Job", "B1", "foo")
	assert.Equal(t, 4, err.Line)
}

func TestToggle(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)
	in.mustRun(t, `
Abstriker.disable = true
class A2 < A1
end
`)
	assert.False(t, in.Session().Engine().Enabled())

	in.mustRun(t, "Abstriker.disable = false\n")
	requireViolation(t, runErr(t, in, "class A8 < A1\nend\n"), "A8", "A1", "foo")
}

func TestAbstractRequiresComponent(t *testing.T) {
	in := newInterpreter(t)
	err := runErr(t, in, "class Plain\n  abstract :foo\nend\n")
	assert.Equal(t, "NoMethodError", err.Class)
	assert.ErrorIs(t, err, ErrNoMethod)
}

func TestRescueDoesNotCatchViolationsByDefault(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, a1)

	err := runErr(t, in, `
begin
  class A2 < A1
  end
rescue => e
  puts "rescued"
end
`)
	requireViolation(t, err, "A2", "A1", "foo")
}

func TestRescueAndEnsure(t *testing.T) {
	var out bytes.Buffer
	in := newInterpreter(t, WithOutput(&out))
	in.mustRun(t, `
begin
  raise ArgumentError, "bad"
rescue TypeError
  puts "type"
rescue ArgumentError => e
  puts "arg: #{e.message}"
ensure
  puts "done"
end
`)
	assert.Equal(t, "arg: bad\ndone\n", out.String())
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		class string
		line  int
	}{
		{"unknown constant", "class X < Missing\nend\n", "NameError", 1},
		{"include a class", "class X\nend\nclass Y\n  include X\nend\n", "TypeError", 4},
		{"superclass mismatch", "class X\nend\nclass Z\nend\nclass X < Z\nend\n", "TypeError", 5},
		{"undefined local", "class X\n  nope\nend\n", "NameError", 2},
		{"syntax", "class X\n  def\n", "SyntaxError", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runErr(t, newInterpreter(t), tt.src)
			assert.Equal(t, tt.class, err.Class)
			if tt.line > 0 {
				assert.Equal(t, tt.line, err.Line)
			}
		})
	}
}

func TestOutputAndLocals(t *testing.T) {
	var out bytes.Buffer
	in := newInterpreter(t, WithOutput(&out))
	in.mustRun(t, `
total = 0
[1, 2, 3].each { |n| total = total + n }
3.times do |i|
  total = total + i
end
puts "total #{total}"
p :sym
puts total > 8 ? "big" : "small"
puts "yes" if total == 9
puts "no" unless total == 9
`)
	assert.Equal(t, "total 9\n:sym\nbig\nyes\n", out.String())
}

func TestConstantAssignmentNamesAnonymousType(t *testing.T) {
	in := newInterpreter(t)
	in.mustRun(t, "Widget = Class.new\nclass Outer\n  class Inner\n  end\nend\n")

	w, ok := in.u.Lookup("Widget")
	require.True(t, ok)
	assert.Equal(t, "Widget", w.Name())
	_, ok = in.u.Lookup("Outer::Inner")
	assert.True(t, ok)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Complete(ctx, []byte("class A\n")))
	assert.True(t, Complete(ctx, []byte("class A\nend\n")))
}
