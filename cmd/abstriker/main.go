package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"abstriker/pkg/lib"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(ancestorsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(exampleCmd)

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"config file (default: ~/.config/"+appName+"/"+configFileName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"log level: trace, debug, info, warn, error or disabled")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "",
		"log format: console or json")
	addCheckFlags(rootCmd)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if isFlagError(err) {
			fmt.Fprintln(os.Stderr, "hint: run `"+appName+" --help` for the list of flags")
		}
		lib.Exit(err)
	}
}

// isFlagError reports whether the error is cobra rejecting a flag.
func isFlagError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown flag:") || strings.Contains(msg, "unknown shorthand flag:")
}
