package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"abstriker/pkg/lib"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shapeScript = `class Shape
  extend Abstriker

  abstract def area
  end
end

class Triangle < Shape
end
`

const brokenScript = `class Shape
  extend Abstriker

  abstract def area
  end
end

class Circle < Shape
  raise "boom"
end
`

const shapeDocument = `types:
  - name: Shape
    component: true
    abstract: [area]
  - name: Circle
    super: Shape
`

func newTestRunner(t *testing.T, enabled bool) *runner {
	t.Helper()
	r, err := newRunner(defaultConfig(), zerolog.Nop(), enabled, nil, nil)
	require.NoError(t, err)
	return r
}

func fileByPath(t *testing.T, rep *Report, path string) FileReport {
	t.Helper()
	for _, f := range rep.Files {
		if f.Path == path {
			return f
		}
	}
	t.Fatalf("no report for %s", path)
	return FileReport{}
}

func typeByName(t *testing.T, f FileReport, name string) TypeReport {
	t.Helper()
	tr := findType(f, name)
	require.NotNil(t, tr, "type %s not reported", name)
	return *tr
}

func TestRun_ScriptViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)

	rep := newTestRunner(t, true).run(context.Background(), []string{path})
	require.Len(t, rep.Files, 1)
	f := rep.Files[0]

	assert.Equal(t, StatusViolation, f.Status)
	require.NotNil(t, f.Violation)
	assert.Equal(t, "Triangle", f.Violation.Type)
	assert.Equal(t, "instance", f.Violation.Side)
	assert.Equal(t, "Shape", f.Violation.Component)
	assert.Equal(t, "Shape#area", f.Violation.Member)
	assert.Equal(t, "Shape", f.Violation.Owner)
	assert.Equal(t, 8, f.Violation.Line)
	assert.Equal(t, "Shape#area is abstract, but not implemented by Triangle", f.Violation.Message)
	assert.Equal(t, 1, f.Monitors.Violations)

	shape := typeByName(t, f, "Shape")
	assert.True(t, shape.Component)
	assert.Equal(t, []string{"area"}, shape.Abstract)
	assert.Equal(t, StatusOK, shape.Status)
	assert.Nil(t, findType(f, "Abstriker"))
	assert.Nil(t, findType(f, "Object"))

	tri := typeByName(t, f, "Triangle")
	assert.Equal(t, StatusViolation, tri.Status)
	assert.Equal(t, []string{"Triangle", "Shape", "Object"}, tri.Ancestors)
	require.Len(t, tri.Members, 1)
	assert.Equal(t, MemberReport{
		Side: "instance", Component: "Shape", Member: "area",
		Qualified: "Shape#area", Owner: "Shape", State: MemberMissing,
	}, tri.Members[0])

	err := rep.Err()
	var ve *violationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 2, lib.Code(err))
}

func TestRun_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)

	rep := newTestRunner(t, false).run(context.Background(), []string{path})
	f := rep.Files[0]
	assert.False(t, rep.Enabled)
	assert.Equal(t, StatusOK, f.Status)
	assert.Empty(t, f.Episodes)
	assert.Equal(t, StatusOK, typeByName(t, f, "Triangle").Status)
	assert.NoError(t, rep.Err())
}

func TestRun_UnrelatedFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.rb")
	writeFile(t, path, brokenScript)

	rep := newTestRunner(t, true).run(context.Background(), []string{path})
	f := rep.Files[0]
	assert.Equal(t, StatusError, f.Status)
	assert.Nil(t, f.Violation)
	assert.Contains(t, f.Error, "boom")
	assert.Equal(t, 0, f.Monitors.Violations)
	assert.Positive(t, f.Monitors.Aborted)

	err := rep.Err()
	require.Error(t, err)
	assert.Equal(t, 1, lib.Code(err))
}

func TestRun_FilesAreIsolated(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "a_shapes.yml")
	script := filepath.Join(dir, "b_square.rb")
	writeFile(t, doc, shapeDocument)
	// Shape only exists in the document's session.
	writeFile(t, script, "class Square < Shape\nend\n")

	rep := newTestRunner(t, true).run(context.Background(), []string{doc, script})

	d := fileByPath(t, rep, doc)
	assert.Equal(t, StatusViolation, d.Status)
	assert.Equal(t, "Circle", d.Violation.Type)
	assert.Equal(t, 5, d.Violation.Line)

	s := fileByPath(t, rep, script)
	assert.Equal(t, StatusError, s.Status)
	assert.Contains(t, s.Error, "NameError")
}

func TestRun_Examples(t *testing.T) {
	dir := t.TempDir()
	rb := filepath.Join(dir, "shapes.rb")
	yml := filepath.Join(dir, "shapes.yml")
	writeFile(t, rb, string(exampleScript))
	writeFile(t, yml, string(exampleDocument))

	rep := newTestRunner(t, true).run(context.Background(), []string{rb, yml})
	for _, f := range rep.Files {
		assert.Equal(t, StatusOK, f.Status, "%s: %s", f.Path, f.Error)
		assert.Zero(t, f.Monitors.Violations)
		for _, name := range []string{"Shape", "Printable", "Square", "Circle"} {
			typeByName(t, f, name)
		}
	}

	square := typeByName(t, fileByPath(t, rep, rb), "Square")
	for _, m := range square.Members {
		assert.Equal(t, MemberImplemented, m.State, m.Qualified)
	}
}

func TestRun_PrependedImplementation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.rb")
	writeFile(t, path, `module Runner
  extend Abstriker
  abstract def run
  end
end
module Impl
  def run
  end
end
class Job
  include Runner
  prepend Impl
end
`)

	rep := newTestRunner(t, true).run(context.Background(), []string{path})
	f := rep.Files[0]
	require.Equal(t, StatusOK, f.Status, f.Error)

	job := typeByName(t, f, "Job")
	assert.Equal(t, []string{"Impl", "Job", "Runner", "Object"}, job.Ancestors)
	require.Len(t, job.Members, 1)
	assert.Equal(t, MemberImplemented, job.Members[0].State)
	assert.Equal(t, "Impl", job.Members[0].Owner)
	assert.Equal(t, "Runner#run", job.Members[0].Qualified)
}

func TestRenderText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)
	rep := newTestRunner(t, true).run(context.Background(), []string{path})
	rep.Stats = &Stats{RSS: 2048, Threads: 3}

	var buf bytes.Buffer
	renderText(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, path+":8")
	assert.Contains(t, out, "Shape#area is abstract, but not implemented by Triangle")
	assert.Contains(t, out, "1 file(s): 0 ok, 1 violation(s), 0 error(s)")
	assert.Contains(t, out, "2.0 KiB")
}

func TestRenderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)
	rep := newTestRunner(t, true).run(context.Background(), []string{path})

	var buf bytes.Buffer
	require.NoError(t, renderJSON(&buf, rep))

	var decoded struct {
		RunID string `json:"run_id"`
		Files []struct {
			Status    string `json:"status"`
			Violation struct {
				Member string `json:"member"`
			} `json:"violation"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.RunID.String(), decoded.RunID)
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, StatusViolation, decoded.Files[0].Status)
	assert.Equal(t, "Shape#area", decoded.Files[0].Violation.Member)
}

func TestPrintTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)
	rep := newTestRunner(t, true).run(context.Background(), []string{path})

	var buf bytes.Buffer
	printTypes(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, path+" [violation]")
	assert.Contains(t, out, "[class, component]")
	assert.Contains(t, out, "#area")
	assert.Contains(t, out, "violation")

	buf.Reset()
	printTypes(&buf, &Report{})
	assert.Equal(t, "no sources found\n", buf.String())
}

func TestPrintAncestors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.rb")
	writeFile(t, path, shapeScript)
	rep := newTestRunner(t, true).run(context.Background(), []string{path})

	var buf bytes.Buffer
	printAncestors(&buf, typeByName(t, rep.Files[0], "Triangle"))
	out := buf.String()
	assert.Contains(t, out, "Triangle (class, violation)")
	assert.Contains(t, out, "instance: Triangle < Shape < Object")
	assert.Contains(t, out, "singleton: #<Class:Triangle> < #<Class:Shape>")
	assert.Contains(t, out, "Shape#area")
	assert.Contains(t, out, MemberMissing)
}
