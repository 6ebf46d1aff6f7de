package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const examplesStartMarker = "# @" + appName + "-examples-start"
const examplesEndMarker = "# @" + appName + "-examples-end"

var configUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh the commented examples of an existing config file",
	Long: "Update the commented example block (between @" + appName + "-examples-start and\n" +
		"@" + appName + "-examples-end markers) of " + configFileName + ".\n\n" +
		"A file without the markers is left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			var err error
			dir, err = resolveConfigDir()
			if err != nil {
				return err
			}
		}
		path := filepath.Join(dir, configFileName)

		changed, err := updateExampleBlock(path, extractExampleBlock(initConfigYAML))
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(os.Stderr, "updated %s\n", path)
		} else {
			fmt.Fprintln(os.Stderr, "everything up to date")
		}
		return nil
	},
}

// extractExampleBlock extracts the lines from the start marker to the end marker
// (inclusive) from content. Returns nil if the markers are not found.
func extractExampleBlock(content []byte) []byte {
	lines := bytes.Split(content, []byte("\n"))
	var result [][]byte
	inBlock := false
	for _, line := range lines {
		trimmed := bytes.TrimRight(line, " \t")
		if bytes.Equal(trimmed, []byte(examplesStartMarker)) {
			inBlock = true
		}
		if inBlock {
			result = append(result, line)
		}
		if inBlock && bytes.Equal(trimmed, []byte(examplesEndMarker)) {
			break
		}
	}
	if len(result) == 0 {
		return nil
	}
	return bytes.Join(result, []byte("\n"))
}

// updateExampleBlock replaces the sentinel block in the file at path with newBlock.
// Returns true if the file was modified.
func updateExampleBlock(path string, newBlock []byte) (bool, error) {
	if newBlock == nil {
		return false, nil
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	updated, changed := replaceExampleBlock(existing, newBlock)
	if !changed {
		return false, nil
	}
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// replaceExampleBlock replaces the content between (and including) the sentinel
// markers in content with newBlock. Returns the modified content and whether a
// change was made.
func replaceExampleBlock(content, newBlock []byte) ([]byte, bool) {
	lines := bytes.Split(content, []byte("\n"))
	startIdx, endIdx := -1, -1
	for i, line := range lines {
		trimmed := bytes.TrimRight(line, " \t")
		if bytes.Equal(trimmed, []byte(examplesStartMarker)) {
			startIdx = i
		}
		if bytes.Equal(trimmed, []byte(examplesEndMarker)) {
			endIdx = i
			break
		}
	}
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return content, false
	}

	existingBlock := bytes.Join(lines[startIdx:endIdx+1], []byte("\n"))
	if bytes.Equal(existingBlock, newBlock) {
		return content, false
	}

	var out [][]byte
	out = append(out, lines[:startIdx]...)
	out = append(out, bytes.Split(newBlock, []byte("\n"))...)
	out = append(out, lines[endIdx+1:]...)
	return bytes.Join(out, []byte("\n")), true
}

func init() {
	configUpdateCmd.Flags().String("dir", "", "target config directory (default: auto-resolved)")
}
