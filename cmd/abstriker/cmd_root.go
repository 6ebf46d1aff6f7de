package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Loaded by the root PersistentPreRunE before any command runs.
var (
	cfg    = defaultConfig()
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   appName + " [paths...]",
	Short: "Check that abstract members are implemented",
	Long: appName + " loads Ruby type definitions (.rb) and declarative documents\n" +
		"(.yml, .yaml) and reports every class or module that finishes its definition\n" +
		"without implementing the abstract members of the components it derives from,\n" +
		"includes or extends.\n\n" +
		"Without a command, the given paths are checked (see `" + appName + " check --help`).",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	ValidArgsFunction: completeSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(cfg.Paths) == 0 {
			return cmd.Help()
		}
		return runCheck(cmd, args)
	},
}

// setup loads .env, the config file and the logger. Flags take precedence
// over both the file and the environment.
func setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	loaded, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		loaded.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		loaded.Log.Format = flagLogFormat
	}
	if err := validateConfig(loaded); err != nil {
		return err
	}
	cfg = loaded
	logger = newLogger(cfg.Log, cmd.ErrOrStderr())
	logger.Debug().Str("config", flagConfig).Bool("enabled", cfg.Enabled).Strs("paths", cfg.Paths).Msg("configuration loaded")
	return nil
}

// completeSources lets the shell complete files and directories.
func completeSources(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"rb", "yml", "yaml"}, cobra.ShellCompDirectiveFilterFileExt
}
