// Package cmd is the thin cobra-based CLI entry point wiring the
// library packages together for manual smoke-testing (SPEC_FULL.md
// AMBIENT STACK). Grounded on the teacher's cmd/root.go: workspace
// detection, config load, then dispatch — with the TUI/indexer/session
// surfaces it wires replaced by SwiftLens's own discovery/analyzer/
// index/telemetry packages.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swiftlens/internal/config"
	"swiftlens/internal/project"
)

var rootCmd = &cobra.Command{
	Use:   "swiftlens",
	Short: "SwiftLens is a Swift code intelligence library fronted by a thin CLI",
	Long: `SwiftLens drives sourcekit-lsp and the Swift compiler to answer
symbol, hover, reference, and build-index questions about a Swift
project. The CLI here exists for manual smoke-testing of the
underlying library packages; tool dispatch for an MCP-style server is
out of scope.`,
}

// Execute runs the root command; main.go's only job is to call this.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveTelemetryCmd)
	rootCmd.AddCommand(configCmd)
}

// currentProjectRoot detects the project root starting from the
// current working directory, the ancestor-walk every subcommand needs
// before it can do anything else.
func currentProjectRoot() (project.Root, error) {
	wd, err := os.Getwd()
	if err != nil {
		return project.Root{}, fmt.Errorf("determine working directory: %w", err)
	}
	d := project.NewDiscoverer()
	return d.Discover(wd)
}

func loadConfig(root string) (*config.Config, error) {
	return config.Load(root)
}
