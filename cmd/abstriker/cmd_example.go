package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

//go:embed example_shapes.rb
var exampleScript []byte

//go:embed example_shapes.yml
var exampleDocument []byte

const exampleScriptHeader = `# ` + appName + ` — script example
# Run:          ` + appName + ` check <this-file>
# YAML form:    ` + appName + ` example --yaml

`

const exampleDocumentHeader = `# ` + appName + ` — declarative example
# Run:          ` + appName + ` check <this-file>
# Script form:  ` + appName + ` example

`

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example source covering components and abstract members",
	Long: "Print a Ruby script that declares components with abstract members and\n" +
		"types implementing them. Use --yaml for the same types as a declarative\n" +
		"document. Use --output to write to a file instead of stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		header, body := exampleScriptHeader, exampleScript
		if asYAML {
			header, body = exampleDocumentHeader, exampleDocument
		}

		output, _ := cmd.Flags().GetString("output")
		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		fmt.Fprint(w, header)
		w.Write(body)

		if output != "" {
			fmt.Fprintf(os.Stderr, "written to %s\n", output)
		}
		return nil
	},
}

func init() {
	exampleCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	exampleCmd.Flags().Bool("yaml", false, "print the declarative document instead of the script")
}
