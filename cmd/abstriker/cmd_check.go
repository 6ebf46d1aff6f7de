package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	flagFormat  string
	flagDisable bool
	flagStats   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Load sources and report abstract members left unimplemented",
	Long: "Load every .rb script and .yml/.yaml document (directories are scanned\n" +
		"recursively), each in its own session, and report the first violation or\n" +
		"failure of each file.\n\n" +
		"Without paths, the 'paths' of the config file and $" + envPaths + " are used.\n" +
		"Exit code: 0 when every file loads, 2 when a violation is reported, 1 otherwise.",
	ValidArgsFunction: completeSources,
	RunE:              runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if flagFormat != "text" && flagFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", flagFormat)
	}
	files, err := resolveSources(args, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	scriptOut := out
	if flagFormat == "json" {
		scriptOut = io.Discard
	}
	r, err := newRunner(cfg, logger, cfg.Enabled && !flagDisable, nil, scriptOut)
	if err != nil {
		return err
	}
	rep := r.run(cmd.Context(), files)

	if flagStats {
		st, err := collectStats()
		if err != nil {
			logger.Warn().Err(err).Msg("process stats unavailable")
		}
		rep.Stats = st
	}

	if flagFormat == "json" {
		if err := renderJSON(out, rep); err != nil {
			return err
		}
	} else {
		renderText(out, rep)
	}
	return rep.Err()
}

// addCheckFlags registers the check flags on cmd. The root command shares
// them since checking is its default action.
func addCheckFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagFormat, "format", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&flagDisable, "disable", false, "load the sources with checking turned off")
	cmd.Flags().BoolVar(&flagStats, "stats", false, "print process statistics after the report")
}

func init() {
	addCheckFlags(checkCmd)
}
