package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"abstriker/cmd/abstriker/decl"
	"abstriker/cmd/abstriker/script"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = appName + "> "
	replHistoryLen = 500
)

var replContinue = strings.Repeat(" ", len(appName)-1) + "| "

var replCmd = &cobra.Command{
	Use:   "repl [files...]",
	Short: "Define types interactively",
	Long: "Start an interactive session. Input accumulates until it forms complete\n" +
		"statements, then runs in one persistent session: types and locals defined\n" +
		"by one entry are visible to the next. An empty line runs incomplete input\n" +
		"anyway, ctrl+c discards it.\n\n" +
		"Commands: :types  :enable  :disable  :reset  :quit\n" +
		"Files given as arguments are run first.",
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		var history string
		if dir, err := resolveConfigDir(); err == nil {
			history = filepath.Join(dir, "history")
		}
		rl, err := readline.NewEx(&readline.Config{
			Prompt:            replPrompt,
			HistoryFile:       history,
			HistoryLimit:      replHistoryLen,
			InterruptPrompt:   "^C",
			EOFPrompt:         ":quit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("starting readline: %w", err)
		}
		defer rl.Close()

		r, err := newRunner(cfg, logger, cfg.Enabled, nil, rl.Stdout())
		if err != nil {
			return err
		}
		sh := newShell(cmd.Context(), r, rl.Stdout())
		defer sh.close()

		for _, f := range args {
			sh.report(sh.loadFile(f))
		}
		return sh.loop(rl)
	},
}

// shell is the state of one REPL: a persistent interpreter and the input
// gathered so far.
type shell struct {
	ctx context.Context
	r   *runner
	out io.Writer
	in  *script.Interpreter
	buf strings.Builder
	n   int
}

func newShell(ctx context.Context, r *runner, out io.Writer) *shell {
	sh := &shell{ctx: ctx, r: r, out: out}
	sh.reset()
	return sh
}

func (sh *shell) reset() {
	if sh.in != nil {
		sh.in.Close()
	}
	sh.r.engine.Registry().Reset()
	sh.in = script.New(sh.r.engine.NewSession(sh.ctx), script.WithOutput(sh.out), script.WithLogger(sh.r.log))
	sh.buf.Reset()
}

func (sh *shell) close() { sh.in.Close() }

// loadFile runs a script or applies a document in the shell session.
func (sh *shell) loadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return decl.New(sh.in.Session(), decl.WithLogger(sh.r.log)).LoadFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return sh.in.Run(sh.ctx, path, src)
}

func (sh *shell) loop(rl *readline.Instance) error {
	for {
		if sh.buf.Len() == 0 {
			rl.SetPrompt(replPrompt)
		} else {
			rl.SetPrompt(replContinue)
		}
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			sh.buf.Reset()
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if quit := sh.feed(line); quit {
			return nil
		}
	}
}

// feed handles one input line and reports whether the shell should stop.
func (sh *shell) feed(line string) bool {
	trimmed := strings.TrimSpace(line)
	if sh.buf.Len() == 0 && strings.HasPrefix(trimmed, ":") {
		return sh.command(trimmed)
	}
	if trimmed == "" && sh.buf.Len() == 0 {
		return false
	}

	sh.buf.WriteString(line)
	sh.buf.WriteByte('\n')
	src := sh.buf.String()
	if trimmed != "" && !script.Complete(sh.ctx, []byte(src)) {
		return false
	}
	sh.buf.Reset()
	sh.n++
	sh.report(sh.in.Run(sh.ctx, fmt.Sprintf("(repl):%d", sh.n), []byte(src)))
	return false
}

func (sh *shell) command(c string) bool {
	e := sh.r.engine
	switch c {
	case ":quit", ":q", ":exit":
		return true
	case ":reset":
		sh.reset()
		fmt.Fprintln(sh.out, "session reset")
	case ":enable", ":disable":
		e.SetEnabled(c == ":enable")
		fmt.Fprintf(sh.out, "checks %s\n", strings.TrimPrefix(c, ":")+"d")
	case ":types":
		ld := &loaded{Path: "(repl)", Session: sh.in.Session()}
		f := summarize(ld, e.Registry())
		rep := &Report{Enabled: e.Enabled(), Files: []FileReport{f}}
		printTypes(sh.out, rep)
	default:
		fmt.Fprintf(sh.out, "unknown command %s (try :types :enable :disable :reset :quit)\n", c)
	}
	return false
}

func (sh *shell) report(err error) {
	if err == nil {
		return
	}
	var se *script.Error
	if errors.As(err, &se) && se.Class == script.ViolationClass {
		fmt.Fprintln(sh.out, styleErr.Render(err.Error()))
		return
	}
	fmt.Fprintln(sh.out, styleWarn.Render(err.Error()))
}
