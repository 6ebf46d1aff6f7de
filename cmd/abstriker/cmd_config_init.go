package main

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed cmd_config_init.yml
var initConfigYAML []byte

const configInitHeader = "# " + appName + " configuration\n" +
	"# ─────────────────────────────────────────────────────────────────────────────\n" +
	"# Show the effective values:  " + appName + " config show\n" +
	"# Refresh the examples below: " + appName + " config update\n" +
	"# ─────────────────────────────────────────────────────────────────────────────\n\n"

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file",
	Long: "Create " + configFileName + " in the config directory. The commented examples at\n" +
		"the end sit behind sentinel markers and can be refreshed later with\n" +
		"`" + appName + " config update`. With --interactive, the values are asked for.\n\n" +
		"The default config directory follows the same priority as the other commands:\n" +
		"  $" + envConfigDir + " > $XDG_CONFIG_HOME/" + appName + " > ~/.config/" + appName,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		dir, _ := cmd.Flags().GetString("dir")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if dir == "" {
			var err error
			dir, err = resolveConfigDir()
			if err != nil {
				return err
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
		path := filepath.Join(dir, configFileName)

		content := initConfigYAML
		if interactive {
			c, err := askConfig()
			if err != nil {
				return err
			}
			if content, err = renderConfig(c); err != nil {
				return err
			}
		}

		if err := writeInitFile(path, configInitHeader, content, force); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "initialised %s\n", path)
		fmt.Fprintf(os.Stderr, "\nRun `%s config show` to see the effective configuration.\n", appName)
		return nil
	},
}

// askConfig fills a configuration from a terminal form.
func askConfig() (Config, error) {
	c := defaultConfig()
	var paths string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Check abstract members?").
				Description("Turning this off loads sources without any check.").
				Value(&c.Enabled),
			huh.NewInput().
				Title("Source paths").
				Description("Colon-separated files or directories checked by default.").
				Value(&paths),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&c.Log.Level),
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOptions("console", "json")...).
				Value(&c.Log.Format),
			huh.NewInput().
				Title("Metrics address for watch").
				Placeholder("127.0.0.1:9464").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					if _, _, err := net.SplitHostPort(s); err != nil {
						return errors.New("expected host:port")
					}
					return nil
				}).
				Value(&c.Watch.MetricsAddr),
		),
	)
	if err := form.Run(); err != nil {
		return Config{}, err
	}
	c.Paths = splitColon(strings.TrimSpace(paths))
	return c, validateConfig(c)
}

// renderConfig marshals c and appends the example block of the template.
func renderConfig(c Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	if block := extractExampleBlock(initConfigYAML); block != nil {
		out = append(out, '\n')
		out = append(out, block...)
		out = append(out, '\n')
	}
	return out, nil
}

func writeInitFile(path, header string, content []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if header != "" {
		fmt.Fprint(f, header)
	}
	_, err = f.Write(content)
	return err
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configInitCmd.Flags().String("dir", "", "target config directory (default: auto-resolved)")
	configInitCmd.Flags().BoolP("interactive", "i", false, "ask for the values in a form")
}
