package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the " + appName + " config file",
	Long:  "Commands for initialising, updating and showing the " + appName + " config file.",
	// The config commands must work while the config file is broken.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: "Print the configuration after environment overrides and defaults, and the\n" +
		"file it was read from.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd); err != nil {
			return err
		}
		path := flagConfig
		if path == "" {
			dir, err := resolveConfigDir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, configFileName)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "# %s\n", path)
		cmd.OutOrStdout().Write(out)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configUpdateCmd)
	configCmd.AddCommand(configShowCmd)
}
