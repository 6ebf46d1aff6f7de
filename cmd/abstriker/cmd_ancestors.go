package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"
)

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors <path> [type]",
	Short: "Show the ancestor chains of a type and how its abstract members resolve",
	Long: "Load one source file and print, for both the instance and the singleton\n" +
		"side of a type, its ancestor chain and the resolution of every abstract\n" +
		"member reachable from it. Without a type name, a fuzzy finder lists the\n" +
		"types the file defined.",
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cfg, logger, cfg.Enabled && !flagDisable, nil, io.Discard)
		if err != nil {
			return err
		}
		rep := r.run(cmd.Context(), args[:1])
		f := rep.Files[0]
		if f.Status != StatusOK {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f.Path, f.Error)
		}

		var t *TypeReport
		if len(args) == 2 {
			t = findType(f, args[1])
			if t == nil {
				return fmt.Errorf("%s does not define %s", f.Path, args[1])
			}
		} else {
			if t, err = pickType(f); err != nil {
				return err
			}
		}
		printAncestors(cmd.OutOrStdout(), *t)
		return nil
	},
}

func init() {
	ancestorsCmd.Flags().BoolVar(&flagDisable, "disable", false, "load the source with checking turned off")
}

func findType(f FileReport, name string) *TypeReport {
	for i := range f.Types {
		if f.Types[i].Name == name {
			return &f.Types[i]
		}
	}
	return nil
}

// pickType lets the user select a type interactively in the terminal.
func pickType(f FileReport) (*TypeReport, error) {
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("%s defines no types", f.Path)
	}
	idx, err := fuzzyfinder.Find(
		f.Types,
		func(i int) string {
			return f.Types[i].Name
		},
		fuzzyfinder.WithPromptString("Select type: "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i < 0 {
				return ""
			}
			var b strings.Builder
			printAncestors(&b, f.Types[i])
			return b.String()
		}),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return nil, errors.New("no type selected")
	}
	if err != nil {
		return nil, err
	}
	return &f.Types[idx], nil
}

func printAncestors(w io.Writer, t TypeReport) {
	status := t.Status
	if t.Component {
		status += ", component"
	}
	fmt.Fprintf(w, "%s (%s, %s)\n", t.Name, t.Kind, status)
	printSide(w, "instance", t.Ancestors, t.Members)
	printSide(w, "singleton", t.SingletonAncestors, t.Members)
}

func printSide(w io.Writer, side string, chain []string, members []MemberReport) {
	fmt.Fprintf(w, "  %s: %s\n", side, strings.Join(chain, " < "))
	for _, m := range members {
		if m.Side != side {
			continue
		}
		owner := m.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(w, "    %-24s %-12s %s\n", m.Qualified, m.State, owner)
	}
}
