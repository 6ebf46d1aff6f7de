package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:               "list [paths...]",
	Short:             "List the types, components and abstract members of the sources",
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := resolveSources(args, cfg)
		if err != nil {
			return err
		}
		r, err := newRunner(cfg, logger, cfg.Enabled, nil, io.Discard)
		if err != nil {
			return err
		}
		printTypes(cmd.OutOrStdout(), r.run(cmd.Context(), files))
		return nil
	},
}

// typeEntry is one aligned line of the listing.
type typeEntry struct {
	name    string
	kind    string // "class" or "module", suffixed with "component"
	status  string
	members string
}

// printTypes prints every type of every file aligned, grouped by file.
func printTypes(w io.Writer, rep *Report) {
	if len(rep.Files) == 0 {
		fmt.Fprintln(w, "no sources found")
		return
	}

	for i, f := range rep.Files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s [%s]\n", f.Path, f.Status)

		entries := make([]typeEntry, len(f.Types))
		maxName, maxKind := 0, 0
		for j, t := range f.Types {
			kind := t.Kind
			if t.Component {
				kind += ", component"
			}
			entries[j] = typeEntry{name: t.Name, kind: kind, status: t.Status, members: memberSummary(t)}
			maxName = max(maxName, len(t.Name))
			maxKind = max(maxKind, len(kind))
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "  no types defined")
			continue
		}
		for _, e := range entries {
			fmt.Fprintf(w, "  %-*s  %-*s  %-9s  %s\n", maxName, e.name, maxKind+2, "["+e.kind+"]", e.status, e.members)
		}
	}
}
