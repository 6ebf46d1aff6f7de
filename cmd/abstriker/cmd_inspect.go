package main

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var flagNoTUI bool

var inspectCmd = &cobra.Command{
	Use:   "inspect [paths...]",
	Short: "Browse the checked types in an interactive table",
	Long: "Check the sources and show every type they define in a table. Select a\n" +
		"row to see its ancestor chains and the resolution of its abstract members;\n" +
		"press r to check the sources again.",
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := resolveSources(args, cfg)
		if err != nil {
			return err
		}
		r, err := newRunner(cfg, logger, cfg.Enabled && !flagDisable, nil, io.Discard)
		if err != nil {
			return err
		}
		rep := r.run(cmd.Context(), files)

		if flagNoTUI {
			printTypeTable(cmd.OutOrStdout(), rep)
			return nil
		}

		p := tea.NewProgram(newModel(rep, reloader(cmd.Context(), r, files)), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "plain text output without the interactive table")
	inspectCmd.Flags().BoolVar(&flagDisable, "disable", false, "load the sources with checking turned off")
}

func printTypeTable(w io.Writer, rep *Report) {
	fmt.Fprintf(w, "%-24s %-22s %-8s %-10s %s\n", "FILE", "TYPE", "KIND", "STATUS", "ABSTRACT")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, f := range rep.Files {
		for _, t := range f.Types {
			kind := t.Kind
			if t.Component {
				kind += "*"
			}
			fmt.Fprintf(w, "%-24s %-22s %-8s %-10s %s\n", f.Path, t.Name, kind, t.Status, memberSummary(t))
		}
	}
}
