package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"abstriker/cmd/abstriker/closure"
	"abstriker/cmd/abstriker/decl"
	"abstriker/cmd/abstriker/engine"
	"abstriker/cmd/abstriker/lifecycle"
	"abstriker/cmd/abstriker/monitor"
	"abstriker/cmd/abstriker/object"
	"abstriker/cmd/abstriker/registry"
	"abstriker/cmd/abstriker/scope"
	"abstriker/cmd/abstriker/script"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// runner loads source files, each into a fresh session of one engine.
type runner struct {
	engine *engine.Engine
	log    zerolog.Logger
	out    io.Writer
}

// newRunner creates the engine for one command. reg may be nil.
func newRunner(c Config, log zerolog.Logger, enabled bool, reg prometheus.Registerer, out io.Writer) (*runner, error) {
	e, err := engine.New(
		engine.WithLogger(log),
		engine.WithRegisterer(reg),
		engine.WithEnabled(enabled),
		engine.WithClassifierOptions(scope.WithCacheSize(c.Classifier.CacheSize)),
	)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &runner{engine: e, log: log, out: out}, nil
}

// loaded is one source file applied to its own session.
type loaded struct {
	Path    string
	Session *engine.Session
	Err     error

	close func()
}

func (l *loaded) Close() {
	if l.close != nil {
		l.close()
	}
}

// load runs the file at path: scripts through the interpreter, everything
// with a YAML extension through the declarative loader.
func (r *runner) load(ctx context.Context, path string) *loaded {
	s := r.engine.NewSession(ctx)
	ld := &loaded{Path: path, Session: s}
	log := r.log.With().Str("file", path).Logger()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		ld.Err = decl.New(s, decl.WithLogger(log)).LoadFile(path)
	default:
		src, err := os.ReadFile(path)
		if err != nil {
			ld.Err = fmt.Errorf("reading %s: %w", path, err)
			return ld
		}
		in := script.New(s, script.WithOutput(r.out), script.WithLogger(log))
		ld.close = in.Close
		ld.Err = in.Run(ctx, path, src)
	}
	if ld.Err != nil {
		log.Debug().Err(ld.Err).Msg("load stopped")
	}
	return ld
}

// run checks files in order and returns the report. Declarations of an
// earlier run are dropped first.
func (r *runner) run(ctx context.Context, files []string) *Report {
	r.engine.Registry().Reset()
	rep := newReport(r.engine.Enabled())
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		ld := r.load(ctx, f)
		rep.Files = append(rep.Files, summarize(ld, r.engine.Registry()))
		ld.Close()
	}
	rep.finish()
	r.log.Info().
		Str("run_id", rep.RunID.String()).
		Int("files", len(rep.Files)).
		Int("violations", rep.Violations()).
		Int("failures", rep.Failures()).
		Dur("elapsed", rep.Elapsed).
		Msg("check finished")
	return rep
}

// summarize turns a loaded file into its report entry.
func summarize(ld *loaded, reg *registry.Registry) FileReport {
	fr := FileReport{Path: ld.Path, Status: StatusOK}

	var v *closure.Violation
	switch {
	case ld.Err == nil:
	case errors.As(ld.Err, &v):
		fr.Status = StatusViolation
		fr.Error = ld.Err.Error()
		fr.Violation = &ViolationReport{
			Type:      v.Type.Name(),
			Side:      v.Side.String(),
			Component: v.Component.Name(),
			Member:    v.Qualified(),
			Line:      errorLine(ld.Err),
			Message:   v.Error(),
		}
		if v.Owner != nil {
			fr.Violation.Owner = v.Owner.Name()
		}
	default:
		fr.Status = StatusError
		fr.Error = ld.Err.Error()
	}

	for _, o := range ld.Session.Hook.Outcomes() {
		fr.Episodes = append(fr.Episodes, episodeReport(o))
		switch {
		case o.Violation != nil:
			fr.Monitors.Violations++
		case o.State == monitor.Aborted:
			fr.Monitors.Aborted++
		default:
			fr.Monitors.Passed++
		}
	}

	u := ld.Session.Universe
	marker, _ := u.Lookup(script.MarkerName)
	for _, t := range u.Types() {
		if t == u.Object() || t == marker {
			continue
		}
		fr.Types = append(fr.Types, typeReport(u, t, v, reg))
	}
	return fr
}

func typeReport(u *object.Universe, t *object.Type, v *closure.Violation, reg *registry.Registry) TypeReport {
	tr := TypeReport{
		Name:      t.Name(),
		Kind:      t.Kind().String(),
		Component: reg.Enabled(t),
		Abstract:  reg.MembersOf(t),
		Ancestors: chainNames(t.Ancestors()),
		Status:    StatusOK,
	}
	if t.HasMeta() {
		tr.SingletonAbstract = reg.MembersOf(t.Meta())
	}
	tr.SingletonAncestors = chainNames(t.Meta().Ancestors())
	tr.Members = append(resolve(t, lifecycle.Instance, reg), resolve(t, lifecycle.Singleton, reg)...)

	if bound, ok := u.Lookup(t.Name()); !ok || bound != t {
		tr.Status = StatusUnbound
	}
	if v != nil && v.Type == t {
		tr.Status = StatusViolation
	}
	return tr
}

// resolve reports how every abstract member reachable from one side of t
// resolves, most specific component first.
func resolve(t *object.Type, side lifecycle.Side, reg *registry.Registry) []MemberReport {
	subject := lifecycle.SideType(t, side)
	table := subject.Seal()
	chain := table.Ancestors()
	own := table.Index(subject)
	var out []MemberReport
	for i, component := range chain {
		for _, name := range reg.MembersOf(component) {
			mr := MemberReport{
				Side:      side.String(),
				Component: component.Name(),
				Member:    name,
				Qualified: closure.Qualify(component, name),
			}
			m, ok := table.Lookup(name)
			switch {
			case i <= own:
				mr.State = MemberDeclared
			case ok && table.Index(m.Owner) < i:
				mr.State = MemberImplemented
			default:
				mr.State = MemberMissing
			}
			if ok {
				mr.Owner = m.Owner.Name()
			}
			out = append(out, mr)
		}
	}
	return out
}

func episodeReport(o engine.Outcome) EpisodeReport {
	ep := EpisodeReport{
		Type:      o.Type.Name(),
		Side:      o.Side.String(),
		Component: o.Component.Name(),
		Mode:      o.Mode.String(),
		Placement: o.Placement.String(),
		State:     o.State.String(),
	}
	if o.Violation != nil {
		ep.Violation = o.Violation.Error()
	}
	return ep
}

func chainNames(chain []*object.Type) []string {
	out := make([]string, len(chain))
	for i, t := range chain {
		out[i] = t.Name()
	}
	return out
}

// errorLine returns the source line carried by a located error, or zero.
func errorLine(err error) int {
	var se *script.Error
	if errors.As(err, &se) {
		return se.Line
	}
	var de *decl.Error
	if errors.As(err, &de) {
		return de.Line
	}
	return 0
}
